// Package main provides an interactive shell for the pgGit engine.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/pggit/pggit"
	"github.com/pggit/pggit/core"
	"github.com/pggit/pggit/introspect"
	"github.com/pggit/pggit/merge"
	"github.com/pggit/pggit/store"
	"github.com/pggit/pggit/trinity"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// CLI holds the CLI state
type CLI struct {
	instance    *pggit.Instance
	identity    core.Identity
	history     []string
	historyFile string
	branch      string // current branch context
}

func main() {
	dataPath := flag.String("data", "", "Commit graph database path (memory if empty)")
	hotDir := flag.String("hotDir", "", "Directory for hot payload storage (memory if empty)")
	coldLocation := flag.String("cold", "", "Cold archive location: directory, file:// or s3://bucket/prefix")
	scriptFile := flag.String("scriptFile", "", "Command script to execute (non-interactive)")
	userName := flag.String("name", "pgGit", "User name for commits")
	userEmail := flag.String("email", "cli@pggit.local", "User email for commits")
	flag.Parse()

	printBanner()

	ctx := context.Background()

	cfg := pggit.Config{Path: *dataPath, HotDir: *hotDir, ColdLocation: *coldLocation}
	if *dataPath == "" {
		fmt.Printf("%sUsing in-memory commit graph%s\n", SuccessColor, ResetColor)
	} else {
		fmt.Printf("%sUsing commit graph database: %s%s\n", SuccessColor, *dataPath, ResetColor)
	}

	instance, err := pggit.Open(ctx, cfg)
	if err != nil {
		fmt.Printf("%sError: %v%s\n", ErrorColor, err, ResetColor)
		return
	}
	defer instance.Close()

	identity := core.Identity{
		Name:  *userName,
		Email: *userEmail,
	}
	if _, err := instance.Store.Init(ctx, identity); err != nil {
		fmt.Printf("%sError: %v%s\n", ErrorColor, err, ResetColor)
		return
	}

	cli := &CLI{
		instance:    instance,
		identity:    identity,
		history:     make([]string, 0),
		historyFile: getHistoryPath(),
		branch:      store.DefaultBranch,
	}

	cli.loadHistory()

	// Execute command script if provided
	if *scriptFile != "" {
		err := cli.importFile(*scriptFile)
		if err != nil {
			fmt.Printf("%sError importing file: %v%s\n", ErrorColor, err, ResetColor)
			os.Exit(1)
		}
		return
	}

	cli.run()
}

func printBanner() {
	fmt.Println()
	bannerWidth := 39 // inner width of the banner box
	versionLine := fmt.Sprintf("pgGit v%s", Version)
	padding := bannerWidth - len(versionLine) - 2 // -2 for "  " margins
	if padding < 0 {
		padding = 0
	}
	leftPad := padding / 2
	rightPad := padding - leftPad

	fmt.Printf("%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s║ %*s%s%*s ║%s\n", BoldColor, PromptColor, leftPad, "", versionLine, rightPad, "", ResetColor)
	fmt.Printf("%s%s║   Version Control for Structured Data ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
	fmt.Println("Type .help for commands, .quit to exit")
	fmt.Println()
}

func (cli *CLI) run() {
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print(cli.getPrompt())

		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Printf("\n%sGoodbye!%s\n", SuccessColor, ResetColor)
			return
		}

		input = strings.TrimSuffix(input, "\n")
		input = strings.TrimSuffix(input, "\r")

		if strings.TrimSpace(input) == "" {
			continue
		}

		if strings.HasPrefix(input, ".") {
			if cli.handleCommand(input) {
				continue
			}
		}

		cli.addToHistory(strings.TrimSpace(input))
		cli.execute(strings.TrimSpace(input))
	}
}

func (cli *CLI) getPrompt() string {
	return fmt.Sprintf("%spggit (%s)>%s ", PromptColor, cli.branch, ResetColor)
}

func (cli *CLI) handleCommand(input string) bool {
	cmd := strings.TrimSpace(input)
	parts := strings.Fields(cmd)

	if len(parts) == 0 {
		return true
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		fmt.Printf("%sGoodbye!%s\n", SuccessColor, ResetColor)
		cli.saveHistory()
		os.Exit(0)

	case ".help", ".h", ".?":
		cli.printHelp()

	case ".branches":
		cli.showBranches()

	case ".use":
		if len(parts) > 1 {
			cli.branch = parts[1]
			fmt.Printf("%s✓ Using branch: %s%s\n", SuccessColor, cli.branch, ResetColor)
		} else {
			fmt.Printf("%s✗ Usage: .use <branch>%s\n", ErrorColor, ResetColor)
		}

	case ".clear", ".cls":
		fmt.Print("\033[H\033[2J")

	case ".history":
		cli.printHistory()

	case ".version":
		fmt.Printf("pgGit version %s\n", Version)

	case ".import":
		if len(parts) > 1 {
			err := cli.importFile(parts[1])
			if err != nil {
				fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
			}
		} else {
			fmt.Printf("%s✗ Usage: .import <file>%s\n", ErrorColor, ResetColor)
		}

	default:
		fmt.Printf("%s✗ Unknown command: %s (type .help for commands)%s\n", ErrorColor, parts[0], ResetColor)
	}

	return true
}

// execute runs one engine command line.
func (cli *CLI) execute(line string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}

	ctx := context.Background()
	var err error

	switch strings.ToLower(parts[0]) {
	case "capture":
		err = cli.capture(ctx, parts[1:])
	case "branch":
		err = cli.createBranch(ctx, parts[1:])
	case "merge":
		err = cli.merge(ctx, parts[1:])
	case "log":
		err = cli.log(ctx)
	case "diff":
		err = cli.diff(ctx, parts[1:])
	case "show":
		err = cli.show(ctx, parts[1:])
	case "migrate":
		err = cli.migrate(ctx)
	default:
		err = fmt.Errorf("unknown command: %s (type .help for commands)", parts[0])
	}

	if err != nil {
		fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
	}
}

// capture introspects a DuckDB database file and commits its schema to the
// current branch.
func (cli *CLI) capture(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: capture <database-file> [message]")
	}

	db, err := sql.Open("duckdb", args[0])
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	snap, err := introspect.CaptureSchema(ctx, db)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("Capturing schema of %s", filepath.Base(args[0]))
	if len(args) > 1 {
		message = strings.Join(args[1:], " ")
	}

	commit, err := cli.instance.Store.Commit(ctx, cli.branch, message, snap, cli.identity)
	if err != nil {
		return err
	}

	fmt.Printf("%s✓ Committed %s (%d elements)%s\n", SuccessColor, commit.ID, len(snap.Elements), ResetColor)
	return nil
}

func (cli *CLI) createBranch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: branch <name> [from-commit]")
	}

	var from trinity.ID
	if len(args) > 1 {
		parsed, err := trinity.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid from commit: %w", err)
		}
		from = parsed
	} else {
		head, err := cli.instance.Store.GetBranch(ctx, cli.branch)
		if err != nil {
			return err
		}
		from = head.Head
	}

	branch, err := cli.instance.Store.CreateBranch(ctx, args[0], from)
	if err != nil {
		return err
	}

	fmt.Printf("%s✓ Created branch %s at %s%s\n", SuccessColor, branch.Name, branch.Head, ResetColor)
	return nil
}

func (cli *CLI) merge(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: merge <source-branch> [strategy]")
	}

	opts := merge.Options{Strategy: merge.StrategyManual}
	if len(args) > 1 {
		opts.Strategy = merge.Strategy(args[1])
	}

	result, err := cli.instance.Merger.Merge(ctx, args[0], cli.branch, cli.identity, opts)
	if err != nil {
		return err
	}

	switch {
	case result.UpToDate:
		fmt.Printf("%s✓ Already up to date%s\n", SuccessColor, ResetColor)
	case result.Report != nil:
		fmt.Printf("%s✗ Merge has %d conflicts:%s\n", ErrorColor, len(result.Report.Conflicts), ResetColor)
		for _, conflict := range result.Report.Conflicts {
			fmt.Printf("    %s\n", conflict.Key)
		}
	case result.FastForward:
		fmt.Printf("%s✓ Fast-forwarded %s to %s%s\n", SuccessColor, cli.branch, result.Commit.ID, ResetColor)
	default:
		fmt.Printf("%s✓ Merged %s into %s as %s%s\n", SuccessColor, args[0], cli.branch, result.Commit.ID, ResetColor)
		if len(result.Resolved) > 0 {
			fmt.Printf("    %d conflicts auto-resolved\n", len(result.Resolved))
		}
	}
	return nil
}

func (cli *CLI) log(ctx context.Context) error {
	branch, err := cli.instance.Store.GetBranch(ctx, cli.branch)
	if err != nil {
		return err
	}

	for commit, err := range cli.instance.Store.History(ctx, branch.Head) {
		if err != nil {
			return err
		}
		marker := " "
		if commit.IsMerge() {
			marker = "M"
		}
		fmt.Printf("%s%s%s %s %-20s %s\n",
			BoldColor, commit.ID, ResetColor, marker,
			commit.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(commit.Message, 50))
	}
	return nil
}

func (cli *CLI) diff(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: diff <commit-a> <commit-b>")
	}

	a, err := trinity.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid commit a: %w", err)
	}
	b, err := trinity.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid commit b: %w", err)
	}

	changes, err := cli.instance.Merger.Diff(ctx, a, b)
	if err != nil {
		return err
	}

	if len(changes) == 0 {
		fmt.Println("No differences")
		return nil
	}

	for _, change := range changes {
		color := SuccessColor
		sign := "+"
		switch change.Kind {
		case merge.Removed:
			color = ErrorColor
			sign = "-"
		case merge.Modified:
			color = PromptColor
			sign = "~"
		}
		fmt.Printf("%s%s %s%s\n", color, sign, change.Key, ResetColor)
	}
	return nil
}

func (cli *CLI) show(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: show <commit-id>")
	}

	id, err := trinity.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid commit: %w", err)
	}

	commit, err := cli.instance.Store.GetCommit(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("%scommit %s%s\n", BoldColor, commit.ID, ResetColor)
	for _, parent := range commit.Parents {
		fmt.Printf("parent %s\n", parent)
	}
	fmt.Printf("Author:      %s\n", commit.Author)
	fmt.Printf("Date:        %s\n", commit.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Branch:      %s\n", commit.Branch)
	fmt.Printf("Fingerprint: %s\n", commit.Fingerprint)
	fmt.Printf("Tier:        %s\n", commit.Tier)
	fmt.Printf("\n    %s\n", commit.Message)
	return nil
}

func (cli *CLI) migrate(ctx context.Context) error {
	if cli.instance.Tiering == nil {
		return fmt.Errorf("no cold archive configured (start with -cold)")
	}

	migrated, err := cli.instance.Tiering.EvaluateAndMigrate(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s✓ Migrated %d payloads to cold storage%s\n", SuccessColor, migrated, ResetColor)
	return nil
}

func (cli *CLI) printHelp() {
	fmt.Println()
	fmt.Printf("%s%sSpecial Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println("  .help, .h        Show this help message")
	fmt.Println("  .quit, .exit     Exit the CLI")
	fmt.Println("  .branches        List all branches")
	fmt.Println("  .use <branch>    Set the current branch context")
	fmt.Println("  .import <file>   Execute commands from a script file")
	fmt.Println("  .history         Show command history")
	fmt.Println("  .clear           Clear the screen")
	fmt.Println("  .version         Show version info")
	fmt.Println()
	fmt.Printf("%s%sEngine Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println("  capture <db-file> [message]   Commit a DuckDB database's schema")
	fmt.Println("  branch <name> [from-commit]   Create a branch")
	fmt.Println("  merge <source> [strategy]     Merge a branch into the current one")
	fmt.Println("  log                           Show commit history")
	fmt.Println("  diff <commit-a> <commit-b>    Show changes between two commits")
	fmt.Println("  show <commit-id>              Show commit details")
	fmt.Println("  migrate                       Run tier migration now")
	fmt.Println()
	fmt.Printf("%s%sMerge strategies:%s manual, source-wins, target-wins, latest-wins\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
}

func (cli *CLI) showBranches() {
	ctx := context.Background()
	names, err := cli.instance.Store.Branches(ctx)
	if err != nil {
		fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		return
	}

	for _, name := range names {
		branch, err := cli.instance.Store.GetBranch(ctx, name)
		if err != nil {
			fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
			return
		}
		marker := " "
		if name == cli.branch {
			marker = "*"
		}
		fmt.Printf("%s %s %s\n", marker, branch.Head, name)
	}
}

func (cli *CLI) addToHistory(cmd string) {
	// Don't add duplicates of the last command
	if len(cli.history) > 0 && cli.history[len(cli.history)-1] == cmd {
		return
	}
	cli.history = append(cli.history, cmd)

	// Limit history size
	if len(cli.history) > 1000 {
		cli.history = cli.history[len(cli.history)-1000:]
	}
}

func (cli *CLI) printHistory() {
	if len(cli.history) == 0 {
		fmt.Println("No command history")
		return
	}

	start := 0
	if len(cli.history) > 20 {
		start = len(cli.history) - 20
	}

	for i := start; i < len(cli.history); i++ {
		fmt.Printf("  %3d  %s\n", i+1, cli.history[i])
	}
}

func getHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pggit_history")
}

func (cli *CLI) loadHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Open(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		cli.history = append(cli.history, scanner.Text())
	}
}

func (cli *CLI) saveHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Create(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	// Save last 1000 entries
	start := 0
	if len(cli.history) > 1000 {
		start = len(cli.history) - 1000
	}

	for i := start; i < len(cli.history); i++ {
		_, _ = file.WriteString(cli.history[i] + "\n")
	}
}

// importFile reads and executes commands from a script file, one per line.
// Lines starting with # are comments.
func (cli *CLI) importFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	lines := splitCommands(string(data))

	for i, line := range lines {
		fmt.Printf("%s[%d] %s%s\n", PromptColor, i+1, truncate(line, 60), ResetColor)
		if strings.HasPrefix(line, ".") {
			cli.handleCommand(line)
		} else {
			cli.execute(line)
		}
	}

	fmt.Printf("\n%s✓ Script complete: %d commands%s\n", SuccessColor, len(lines), ResetColor)
	return nil
}

// splitCommands splits script content into command lines, dropping blanks
// and # comments.
func splitCommands(content string) []string {
	var commands []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		commands = append(commands, line)
	}
	return commands
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
