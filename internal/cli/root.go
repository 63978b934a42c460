package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	s := string(a.Mode)
	if a.session != nil {
		s = a.session.name + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}

// Root runs the interactive command loop until EOF or exit.
func (a *App) Root(ctx context.Context) {

	fmt.Println("Lectorium (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("lect %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Documents: open <path|id>, save, annotations, highlight, remove, resolve, sanitize <in> <out>")
			fmt.Println("Storage:   list, recents, pin <id>, unpin <id>, sweep")
			fmt.Println("Sync:      login, logout, status, sync")
			fmt.Println("Other:     exit")

		case "open":
			if len(args) != 1 {
				fmt.Println("usage: open <path|id>")
				continue
			}
			if err := a.open(ctx, args[0]); err != nil {
				fmt.Printf("open failed: %v\n", err)
			}
		case "save":
			a.saveDoc(ctx)
		case "annotations":
			a.listAnnotations()
		case "highlight":
			a.addHighlight(ctx, args)
		case "remove":
			a.removeAnnotation(ctx, args)
		case "resolve":
			a.resolveConflict(ctx, args)
		case "sanitize":
			a.sanitizeFile(ctx, args)

		case "list":
			a.listOffline(ctx)
		case "recents":
			a.listRecents(ctx)
		case "pin":
			a.setPinned(ctx, args, true)
		case "unpin":
			a.setPinned(ctx, args, false)
		case "sweep":
			a.sweepNow(ctx)

		case "login":
			a.login(ctx)
		case "logout":
			a.logout()
		case "status":
			a.status(ctx)
		case "sync":
			a.syncNow(ctx)

		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Printf("unknown command %q, type 'help'\n", cmd)
		}
	}
}
