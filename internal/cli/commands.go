package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lectorium/lectorium/internal/codec"
	"github.com/lectorium/lectorium/internal/common"
)

// login stores an access token for the remote document store.
func (a *App) login(ctx context.Context) {
	token, err := GetSimpleText(a.reader, "Paste access token", os.Stdout)
	if err != nil {
		fmt.Printf("login failed: %v\n", err)
		return
	}
	if err := a.creds.SetToken(token); err != nil {
		fmt.Printf("login failed: %v\n", err)
		return
	}
	fmt.Println("signed in")
	// queued work can proceed now
	go func() {
		if err := a.proc.Drain(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn(ctx, "post-login drain failed", "err", err)
		}
	}()
}

func (a *App) logout() {
	a.creds.Clear()
	fmt.Println("signed out")
}

func (a *App) status(ctx context.Context) {
	usage, err := a.jan.Usage(ctx)
	if err != nil {
		fmt.Printf("status failed: %v\n", err)
		return
	}
	pending, err := a.settings.QueueLen(ctx)
	if err != nil {
		fmt.Printf("status failed: %v\n", err)
		return
	}
	fmt.Printf("mode:     %s\n", a.Mode)
	fmt.Printf("signed:   %v\n", a.creds.Valid())
	fmt.Printf("storage:  %d / %d bytes\n", usage, a.config.StorageLimit)
	fmt.Printf("queued:   %d\n", pending)
}

func (a *App) listOffline(ctx context.Context) {
	recs, err := a.files.List(ctx)
	if err != nil {
		fmt.Printf("list failed: %v\n", err)
		return
	}
	if len(recs) == 0 {
		fmt.Println("no offline copies")
		return
	}
	for _, rec := range recs {
		flags := ""
		if rec.Pinned {
			flags += " [pinned]"
		}
		if rec.PendingSync {
			flags += " [pending]"
		}
		fmt.Printf("%s  %s  %d bytes%s\n", rec.ID, rec.Name, rec.Size, flags)
	}
}

func (a *App) listRecents(ctx context.Context) {
	recents, err := a.files.ListRecent(ctx, 10)
	if err != nil {
		fmt.Printf("recents failed: %v\n", err)
		return
	}
	for _, rf := range recents {
		fmt.Printf("%s  %s  %s\n", rf.ID, rf.Name, rf.OpenedAt.Format("2006-01-02 15:04"))
	}
}

func (a *App) setPinned(ctx context.Context, args []string, pinned bool) {
	if len(args) != 1 {
		fmt.Println("usage: pin|unpin <id>")
		return
	}
	if err := a.files.SetPinned(ctx, args[0], pinned); err != nil {
		fmt.Printf("failed: %v\n", err)
		return
	}
	fmt.Println("ok")
}

// sanitizeFile rewrites a restricted document into a plain one.
func (a *App) sanitizeFile(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: sanitize <in.pdf> <out.pdf>")
		return
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("sanitize failed: %v\n", err)
		return
	}

	password := ""
	out, err := a.codec.Do(ctx, codec.Request{Op: codec.OpSanitize, Data: data, Password: password})
	if errors.Is(err, common.ErrPasswordRequired) {
		if password, err = GetPassword(os.Stdout); err != nil {
			fmt.Printf("sanitize failed: %v\n", err)
			return
		}
		data, err = os.ReadFile(args[0])
		if err != nil {
			fmt.Printf("sanitize failed: %v\n", err)
			return
		}
		out, err = a.codec.Do(ctx, codec.Request{Op: codec.OpSanitize, Data: data, Password: password})
	}
	if err != nil {
		fmt.Printf("sanitize failed: %v\n", err)
		return
	}

	if err := os.WriteFile(args[1], out, 0o644); err != nil {
		fmt.Printf("sanitize failed: %v\n", err)
		return
	}
	fmt.Printf("wrote %s (%d bytes)\n", args[1], len(out))
}

// Sanitize runs one sanitize pass outside the REPL (the -sanitize flag).
func (a *App) Sanitize(ctx context.Context, in, out string) {
	a.sanitizeFile(ctx, []string{in, out})
}

// DrainOnce runs one sync-queue drain outside the REPL (the -drain flag).
func (a *App) DrainOnce(ctx context.Context) {
	a.syncNow(ctx)
}

// SweepOnce runs one janitor sweep outside the REPL (the -janitor flag).
func (a *App) SweepOnce(ctx context.Context) {
	a.sweepNow(ctx)
}

func (a *App) syncNow(ctx context.Context) {
	if err := a.proc.Drain(ctx); err != nil {
		fmt.Printf("sync interrupted: %v\n", err)
		return
	}
	pending, _ := a.settings.QueueLen(ctx)
	fmt.Printf("sync done, %d item(s) still queued\n", pending)
}

func (a *App) sweepNow(ctx context.Context) {
	if err := a.jan.Sweep(ctx); err != nil {
		fmt.Printf("sweep failed: %v\n", err)
		return
	}
	usage, _ := a.jan.Usage(ctx)
	fmt.Printf("sweep done, %d bytes in use\n", usage)
}
