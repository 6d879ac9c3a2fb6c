package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
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
	case "entry":
		handleEntry(args)
	case "project":
		handleProject(args)
	case "stats":
		showStats(args)
	case "activity":
		listActivities(args)
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
		fmt.Println("Usage: timetrack auth <register|login|logout|who>")
		return
	}

	switch args[0] {
	case "register":
		registerUser(args[1:])
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", args[0])
	}
}

func handleEntry(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: timetrack entry <start|pause|resume|stop|active|list>")
		return
	}

	switch args[0] {
	case "start":
		startEntry(args[1:])
	case "pause":
		transitionEntry(args[1:], "pause")
	case "resume":
		transitionEntry(args[1:], "resume")
	case "stop":
		transitionEntry(args[1:], "stop")
	case "active":
		activeEntry()
	case "list":
		listEntries(args[1:])
	default:
		fmt.Printf("unknown entry command: %s\n", args[0])
	}
}

func handleProject(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: timetrack project <list|create>")
		return
	}

	switch args[0] {
	case "list":
		listProjects()
	case "create":
		createProject(args[1:])
	default:
		fmt.Printf("unknown project command: %s\n", args[0])
	}
}

// Auth commands
func registerUser(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	tenant := fs.String("tenant", "", "tenant name")

	fs.Parse(args)

	if *email == "" || *username == "" || *password == "" || *tenant == "" {
		fmt.Println("Error: email, username, password, and tenant are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/auth/register", map[string]string{
		"email":    *email,
		"username": *username,
		"password": *password,
		"tenant":   *tenant,
	}, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusCreated {
		fmt.Printf("✓ User registered: %s\n", *email)
		if token, ok := result["token"].(string); ok {
			saveToken(token)
		}
	} else {
		fmt.Printf("✗ Registration failed: %v\n", result)
	}
}

func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/auth/login", map[string]string{"email": *email, "password": *password}, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusOK {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("✓ Logged in as: %s\n", *email)
		}
	} else {
		fmt.Printf("✗ Login failed: %v\n", result)
	}
}

func logoutUser() {
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", token[:20])
}

// Entry commands
func startEntry(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	project := fs.String("project", "", "project id (optional)")
	description := fs.String("description", "", "what you are working on")

	fs.Parse(args)

	payload := map[string]string{}
	if *project != "" {
		payload["projectId"] = *project
	}
	if *description != "" {
		payload["description"] = *description
	}

	result, status, err := post("/time-entries", payload, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	switch status {
	case http.StatusCreated:
		fmt.Printf("✓ Tracking started: %v\n", result["id"])
	case http.StatusConflict:
		fmt.Printf("✗ Already tracking entry %v; stop or resume it first\n", result["activeEntryId"])
	default:
		fmt.Printf("✗ Start failed: %v\n", result)
	}
}

func transitionEntry(args []string, op string) {
	if len(args) < 1 {
		fmt.Printf("Usage: timetrack entry %s <entry-id>\n", op)
		return
	}

	result, status, err := put("/time-entries/"+args[0]+"/"+op, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusOK {
		fmt.Printf("✓ Entry %s: %v (%vs)\n", op+"d", result["id"], result["durationSeconds"])
	} else {
		fmt.Printf("✗ %s failed: %v\n", op, result)
	}
}

func activeEntry() {
	result, status, err := get("/time-entries/active")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	switch status {
	case http.StatusOK:
		fmt.Printf("▶ %v  status=%v  live=%vs  %v\n",
			result["id"], result["status"], result["liveSeconds"], result["description"])
	case http.StatusNotFound:
		fmt.Println("No active entry")
	default:
		fmt.Printf("✗ Request failed: %v\n", result)
	}
}

func listEntries(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "max entries")
	project := fs.String("project", "", "filter by project id")

	fs.Parse(args)

	path := fmt.Sprintf("/time-entries?limit=%d", *limit)
	if *project != "" {
		path += "&project=" + *project
	}
	result, status, err := get(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("✗ Request failed: %v\n", result)
		return
	}

	entries, _ := result["entries"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDURATION\tSTARTED\tDESCRIPTION")
	for _, raw := range entries {
		e, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%vs\t%v\t%v\n",
			e["id"], e["status"], e["liveSeconds"], e["startedAt"], e["description"])
	}
	w.Flush()
}

// Project commands
func listProjects() {
	result, status, err := get("/projects")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("✗ Request failed: %v\n", result)
		return
	}

	projects, _ := result["projects"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tARCHIVED")
	for _, raw := range projects {
		p, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\n", p["id"], p["name"], p["archived"])
	}
	w.Flush()
}

func createProject(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "project name")

	fs.Parse(args)

	if *name == "" {
		fmt.Println("Error: name is required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/projects", map[string]string{"name": *name}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusCreated {
		fmt.Printf("✓ Project created: %v\n", result["id"])
	} else {
		fmt.Printf("✗ Create failed: %v\n", result)
	}
}

// Stats command
func showStats(args []string) {
	_ = args
	result, status, err := get("/stats")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("✗ Request failed: %v\n", result)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total tracked\t%vs\n", result["totalSeconds"])
	fmt.Fprintf(w, "Tracked today\t%vs\n", result["todaySeconds"])
	fmt.Fprintf(w, "Running users\t%v\n", result["runningUsers"])
	fmt.Fprintf(w, "Active projects\t%v\n", result["activeProjects"])
	w.Flush()
}

// Activity command
func listActivities(args []string) {
	fs := flag.NewFlagSet("activity", flag.ExitOnError)
	limit := fs.Int("limit", 20, "max records")

	fs.Parse(args)

	result, status, err := get(fmt.Sprintf("/activities?limit=%d", *limit))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("✗ Request failed: %v\n", result)
		return
	}

	activities, _ := result["activities"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tKIND\tENTRY\tUSER")
	for _, raw := range activities {
		a, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", a["occurredAt"], a["kind"], a["entryId"], a["userId"])
	}
	w.Flush()
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("TIMETRACK_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func post(path string, payload map[string]string, authed bool) (map[string]interface{}, int, error) {
	data, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, getAPIURL()+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		addAuthHeader(req)
	}
	return do(req)
}

func put(path string, authed bool) (map[string]interface{}, int, error) {
	req, err := http.NewRequest(http.MethodPut, getAPIURL()+path, nil)
	if err != nil {
		return nil, 0, err
	}
	if authed {
		addAuthHeader(req)
	}
	return do(req)
}

func get(path string) (map[string]interface{}, int, error) {
	req, err := http.NewRequest(http.MethodGet, getAPIURL()+path, nil)
	if err != nil {
		return nil, 0, err
	}
	addAuthHeader(req)
	return do(req)
}

func do(req *http.Request) (map[string]interface{}, int, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return result, resp.StatusCode, nil
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.timetrack/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.timetrack", 0700)
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
	fmt.Print(`timetrack CLI

Usage:
  timetrack <command> [options]

Commands:
  auth      User authentication (register, login, logout, who)
  entry     Time entry operations (start, pause, resume, stop, active, list)
  project   Project operations (list, create)
  stats     Show dashboard stats for your tenant
  activity  Show the recent transition feed
  help      Show this help message

Environment Variables:
  TIMETRACK_API    API endpoint (default: http://localhost:8080/api)

Examples:
  timetrack auth register -email user@example.com -username user -password pass -tenant acme
  timetrack auth login -email user@example.com -password pass
  timetrack entry start -description "code review"
  timetrack entry stop <entry-id>
  timetrack stats
`)
}
