package commands

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
	contextutils "collegefeedback/internal/utils"

	"golang.org/x/term"
)

// cliActor is the identity used for changes made from the admin tool
var cliActor = authz.Actor{ID: 0, Email: "adm", Role: models.RoleSuperAdmin}

// maskDatabaseURL masks sensitive parts of the database URL for display
func maskDatabaseURL(url string) string {
	if i := strings.LastIndex(url, "@"); i >= 0 {
		scheme := "postgres://"
		if j := strings.Index(url, "://"); j >= 0 && j < i {
			scheme = url[:j+3]
		}
		return scheme + "***:***@" + url[i+1:]
	}
	return url
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	if err := db.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		return "Connected (unknown database)"
	}

	var host string
	if err := db.QueryRow("SELECT inet_server_addr()::text").Scan(&host); err != nil {
		return fmt.Sprintf("Connected to %s", dbName)
	}

	return fmt.Sprintf("Connected to %s on %s", dbName, host)
}

// promptPassword reads a password twice without echo
func promptPassword(out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
	}
	if len(first) == 0 {
		return "", contextutils.ErrorWithContextf("password cannot be empty")
	}

	fmt.Fprint(out, "Confirm password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
	}
	if string(first) != string(second) {
		return "", contextutils.ErrorWithContextf("passwords do not match")
	}
	return string(first), nil
}

// passwordFromFlagOrPrompt prefers FEEDBACK_ADM_PASSWORD so scripts can run non-interactively
func passwordFromFlagOrPrompt(out io.Writer, label string) (string, error) {
	if p := os.Getenv("FEEDBACK_ADM_PASSWORD"); p != "" {
		return p, nil
	}
	return promptPassword(out, label)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
