package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"
	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/infrastructure/logger"
	"github.com/yourorg/licensegate/internal/repository"
	"github.com/yourorg/licensegate/pkg/config"
	"github.com/yourorg/licensegate/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "license":
		handleLicense(args)
	case "tenant":
		handleTenant(args)
	case "ops":
		handleOps(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: licensegate auth <signup|login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "signup":
		signup(args[1:])
	case "login":
		login(args[1:])
	case "logout":
		logout()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleLicense(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: licensegate license <list|activate|revoke|clear>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listLicenses(args[1:])
	case "activate":
		activateLicense(args[1:])
	case "revoke":
		revokeLicense(args[1:])
	case "clear":
		clearLicenses(args[1:])
	default:
		fmt.Printf("unknown license command: %s\n", subCmd)
	}
}

func handleTenant(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: licensegate tenant <register>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "register":
		registerTenant(args[1:])
	default:
		fmt.Printf("unknown tenant command: %s\n", subCmd)
	}
}

func handleOps(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: licensegate ops <hash-secret|seed-admin>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "hash-secret":
		hashSecret(args[1:])
	case "seed-admin":
		seedAdmin(args[1:])
	default:
		fmt.Printf("unknown ops command: %s\n", subCmd)
	}
}

// Auth commands
func signup(args []string) {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password (8 characters minimum)")

	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := postJSON("/signup", map[string]string{
		"username": *username,
		"password": *password,
	}, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ User registered: %s\n", *username)
	} else {
		fmt.Printf("✗ Signup failed: %v\n", result)
	}
}

func login(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := postJSON("/login", map[string]string{
		"username": *username,
		"password": *password,
	}, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("✓ Logged in as: %s\n", *username)
			return
		}
	}
	fmt.Printf("✗ Login failed: %v\n", result)
}

func logout() {
	result, status, err := postJSON("/logout", map[string]string{}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	os.Remove(tokenFile())
	if status == 200 {
		fmt.Println("✓ Logged out")
	} else {
		fmt.Printf("✗ Logout failed remotely (%v), local token removed\n", result)
	}
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	preview := token
	if len(preview) > 20 {
		preview = preview[:20]
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", preview)
}

// License commands
func listLicenses(args []string) {
	_ = args
	req, _ := http.NewRequest("GET", getAPIURL()+"/api/v1/licenses", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var licenses []map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&licenses)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LICENSE KEY\tSTATUS")
	for _, lic := range licenses {
		fmt.Fprintf(w, "%v\t%v\n", lic["license_key"], lic["status"])
	}
	w.Flush()
}

func activateLicense(args []string) {
	fs := flag.NewFlagSet("activate", flag.ExitOnError)
	key := fs.String("key", "", "license key (alphanumeric)")
	fs.Parse(args)

	if *key == "" {
		fmt.Println("Error: key is required")
		fs.PrintDefaults()
		return
	}

	result, status, err := postJSON("/activate", map[string]string{"license_key": *key}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ License activated: %s\n", *key)
	} else {
		fmt.Printf("✗ Activation failed: %v\n", result)
	}
}

func revokeLicense(args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	key := fs.String("key", "", "license key")
	fs.Parse(args)

	if *key == "" {
		fmt.Println("Error: key is required")
		fs.PrintDefaults()
		return
	}

	result, status, err := postJSON("/revoke", map[string]string{"license_key": *key}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		fmt.Printf("✓ License revoked: %s\n", *key)
	} else {
		fmt.Printf("✗ Revocation failed: %v\n", result)
	}
}

func clearLicenses(args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	secret := fs.String("secret", "", "operator secret")
	all := fs.Bool("all", false, "clear every tenant (super_admin only)")
	fs.Parse(args)

	if *secret == "" {
		fmt.Println("Error: secret is required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]interface{}{"operator_secret": *secret, "all": *all}
	result, status, err := postJSONAny("/clear_licenses", payload, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		fmt.Printf("✓ %v\n", result["message"])
	} else {
		fmt.Printf("✗ Clear failed: %v\n", result)
	}
}

// Tenant commands
func registerTenant(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "tenant name")
	domainFlag := fs.String("domain", "", "tenant domain")
	fs.Parse(args)

	if *name == "" || *domainFlag == "" {
		fmt.Println("Error: name and domain are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := postJSON("/register_tenant", map[string]string{
		"name":   *name,
		"domain": *domainFlag,
	}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ Tenant registered: %v\n", result["tenant_id"])
	} else {
		fmt.Printf("✗ Registration failed: %v\n", result)
	}
}

// Ops commands

// hashSecret prints the bcrypt hash to configure as OPS_SECRET_HASH.
func hashSecret(args []string) {
	fs := flag.NewFlagSet("hash-secret", flag.ExitOnError)
	secret := fs.String("secret", "", "operator secret to hash")
	fs.Parse(args)

	if *secret == "" {
		fmt.Println("Error: secret is required")
		fs.PrintDefaults()
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*secret), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(string(hash))
}

// seedAdmin creates a super_admin directly in the database. Signup never
// grants elevated roles, so the first operator account comes from here.
func seedAdmin(args []string) {
	fs := flag.NewFlagSet("seed-admin", flag.ExitOnError)
	username := fs.String("username", "", "admin username")
	password := fs.String("password", "", "admin password (8 characters minimum)")
	fs.Parse(args)

	if *username == "" || len(*password) < 8 {
		fmt.Println("Error: username and a password of at least 8 characters are required")
		fs.PrintDefaults()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	log := logger.NewLogger("error")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, log)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer pool.Close()

	if err := pool.EnsureSchema(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	tenantID, err := pool.SeedDefaultTenant(ctx, cfg.DefaultTenantName)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	userRepo := repository.NewPostgresUserRepository(pool.GetDB(), log)
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     *username,
		PasswordHash: string(hash),
		Role:         domain.RoleSuperAdmin,
		TenantID:     tenantID,
		IsActive:     true,
	}
	if err := userRepo.Create(ctx, user); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("✓ super_admin created: %s (tenant %s)\n", *username, tenantID)
}

// Helper functions
func postJSON(path string, payload map[string]string, withAuth bool) (map[string]interface{}, int, error) {
	anyPayload := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		anyPayload[k] = v
	}
	return postJSONAny(path, anyPayload, withAuth)
}

func postJSONAny(path string, payload map[string]interface{}, withAuth bool) (map[string]interface{}, int, error) {
	data, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", getAPIURL()+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		addAuthHeader(req)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return result, resp.StatusCode, nil
}

func getAPIURL() string {
	if url := os.Getenv("LICENSEGATE_API"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.licensegate/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.licensegate", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`LicenseGate CLI

Usage:
  licensegate <command> [options]

Commands:
  auth     User authentication (signup, login, logout, who)
  license  License operations (list, activate, revoke, clear)
  tenant   Tenant operations (register) - super_admin access required
  ops      Operator tooling (hash-secret, seed-admin) - direct DB access
  help     Show this help message

Environment Variables:
  LICENSEGATE_API    API endpoint (default: http://localhost:8080)

Examples:
  licensegate auth signup -username alice -password hunter2hunter2
  licensegate auth login -username alice -password hunter2hunter2
  licensegate license activate -key ABC123
  licensegate license list
  licensegate ops hash-secret -secret changeme
  licensegate ops seed-admin -username root -password longpassword
`)
}
