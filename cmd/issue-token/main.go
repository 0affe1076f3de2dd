package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-examcore/internal/config"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/service"
	"golang.org/x/term"
)

// allPermissions is offered as the default for admin tokens.
var allPermissions = []model.Permission{
	model.PermissionExamsRead,
	model.PermissionExamsWrite,
	model.PermissionResultsRead,
	model.PermissionAttemptsReset,
}

func main() {
	cfg := config.Load()

	// Prompts are only printed for an interactive terminal so the tool can
	// also be fed from a pipe.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	reader := bufio.NewReader(os.Stdin)
	ask := func(prompt string) string {
		if interactive {
			fmt.Print(prompt)
		}
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line)
	}

	if interactive {
		fmt.Println("=== Issue Access Token ===")
	}

	// Token type
	tokenType := service.TokenType(strings.ToLower(ask("Token type (student/admin, default student): ")))
	if tokenType == "" {
		tokenType = service.TokenTypeStudent
	}
	if tokenType != service.TokenTypeStudent && tokenType != service.TokenTypeAdmin {
		fmt.Fprintln(os.Stderr, "Error: token type must be student or admin")
		os.Exit(1)
	}

	// User ID
	userID, err := strconv.Atoi(ask("User ID: "))
	if err != nil || userID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: User ID must be a positive number")
		os.Exit(1)
	}

	// Permissions
	var permissions []string
	if tokenType == service.TokenTypeAdmin {
		raw := ask("Permissions (comma separated, default all): ")
		if raw == "" {
			for _, p := range allPermissions {
				permissions = append(permissions, string(p))
			}
		} else {
			for _, p := range strings.Split(raw, ",") {
				if p = strings.TrimSpace(p); p != "" {
					permissions = append(permissions, p)
				}
			}
		}
	}

	// TTL
	ttl := 8 * time.Hour
	if raw := ask("Valid for (e.g. 2h, default 8h): "); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			fmt.Fprintln(os.Stderr, "Error: invalid duration")
			os.Exit(1)
		}
	}

	// Secret; typed input is hidden and overrides JWT_SECRET.
	secret := cfg.JWTSecret
	if interactive {
		fmt.Print("Signing secret (empty uses JWT_SECRET): ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading secret")
			os.Exit(1)
		}
		if s := strings.TrimSpace(string(b)); s != "" {
			secret = s
		}
	}

	token, err := service.NewAuthService(secret).IssueToken(tokenType, userID, permissions, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if interactive {
		fmt.Printf("\n%s token for user %d, expires %s:\n", tokenType, userID, time.Now().Add(ttl).Format(time.RFC3339))
	}
	fmt.Println(token)
}
