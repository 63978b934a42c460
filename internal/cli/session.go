package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/lectorium/lectorium/internal/codec"
	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/merge"
	"github.com/lectorium/lectorium/internal/models"
	"github.com/lectorium/lectorium/internal/save"
)

// session is the currently open document.
type session struct {
	id       string
	name     string
	mimeType string
	data     []byte
	password string
	engine   *merge.Engine
}

// open loads a document into the session: from disk (import, local-only id)
// or from the offline store by id. The embedded envelope seeds the merge
// engine; the integrity check runs before the first mutation is allowed.
func (a *App) open(ctx context.Context, arg string) error {

	s := &session{mimeType: "application/pdf"}

	if data, err := os.ReadFile(arg); err == nil {
		s.id = models.LocalIDPrefix + uuid.NewString()
		s.name = filepath.Base(arg)
		s.data = data
	} else {
		rec, err := a.files.Get(ctx, arg)
		switch {
		case err == nil:
			s.id = rec.ID
			s.name = rec.Name
			s.mimeType = rec.MimeType
			s.data = rec.Blob
		case errors.Is(err, common.ErrNotFound):
			data, derr := a.fetchRemote(ctx, arg)
			if derr != nil {
				return fmt.Errorf("failed to open %q: %w", arg, derr)
			}
			s.id = arg
			s.name = arg
			s.data = data
		default:
			return fmt.Errorf("failed to open %q: %w", arg, err)
		}
	}

	env, found, err := a.extractEnvelope(s)
	if err != nil {
		// protected or corrupt: the document opens without its embedded
		// layers; a later save falls back to the wrapper container
		fmt.Printf("note: embedded layers unavailable: %v\n", err)
	}

	s.engine = merge.NewEngine(s.id, a.content, a.detector, a.log)
	if found {
		s.engine.SetEmbedded(env.Annotations)
		s.engine.SetPageOffset(env.PageOffset)
	}
	if err := s.engine.LoadLocal(ctx); err != nil {
		return err
	}

	if err := s.engine.BeginCheck(ctx, s.data); err != nil {
		if errors.Is(err, common.ErrConflict) {
			fmt.Println("content changed outside this device; annotations are read-only")
			fmt.Println("use 'resolve use_external' or 'resolve merge' to continue")
		} else {
			return err
		}
	}

	_ = a.files.TouchRecent(ctx, &models.RecentFile{
		ID:       s.id,
		Name:     s.name,
		MimeType: s.mimeType,
	})

	a.session = s
	fmt.Printf("opened %s (%s, %d annotations)\n", s.name, s.id, len(s.engine.Merged()))
	return nil
}

// fetchRemote serves a remote id from the download cache, falling back to a
// live download (which then fills the cache) when connected.
func (a *App) fetchRemote(ctx context.Context, id string) ([]byte, error) {
	if data, err := a.files.CacheGet(ctx, id); err == nil {
		return data, nil
	}
	if !a.prober.Online(ctx) {
		return nil, common.ErrNotFound
	}
	data, err := a.remote.Download(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.files.CachePut(ctx, id, data); err != nil {
		a.log.Warn(ctx, "failed to cache download", "file_id", id, "err", err)
	}
	return data, nil
}

// extractEnvelope tries the blank password first and prompts once when the
// document demands a real one.
func (a *App) extractEnvelope(s *session) (*models.Envelope, bool, error) {
	env, found, err := codec.ExtractEnvelope(s.data, s.password)
	if errors.Is(err, common.ErrPasswordRequired) {
		pw, perr := GetPassword(os.Stdout)
		if perr != nil {
			return nil, false, perr
		}
		s.password = pw
		env, found, err = codec.ExtractEnvelope(s.data, s.password)
	}
	return env, found, err
}

func (a *App) requireSession() *session {
	if a.session == nil {
		fmt.Println("no document open; use 'open <path|id>' first")
		return nil
	}
	return a.session
}

// highlight <page> <x> <y> <w> <h>
func (a *App) addHighlight(ctx context.Context, args []string) {
	s := a.requireSession()
	if s == nil {
		return
	}
	if len(args) != 5 {
		fmt.Println("usage: highlight <page> <x> <y> <w> <h>")
		return
	}
	page, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("bad page number")
		return
	}
	var coords [4]float64
	for i, arg := range args[1:] {
		if coords[i], err = strconv.ParseFloat(arg, 64); err != nil {
			fmt.Printf("bad coordinate %q\n", arg)
			return
		}
	}

	decl := s.engine.Add(ctx, models.Annotation{
		ID:   models.NewAnnotationID(),
		Page: page,
		Type: models.AnnotationHighlight,
		BBox: models.BBox{X: coords[0], Y: coords[1], W: coords[2], H: coords[3]},
	})
	reportDecline(decl)
}

// remove <annotation-id>
func (a *App) removeAnnotation(ctx context.Context, args []string) {
	s := a.requireSession()
	if s == nil {
		return
	}
	if len(args) != 1 {
		fmt.Println("usage: remove <annotation-id>")
		return
	}
	reportDecline(s.engine.Remove(ctx, models.Annotation{ID: args[0]}))
}

func (a *App) listAnnotations() {
	s := a.requireSession()
	if s == nil {
		return
	}
	anns := s.engine.Merged()
	if len(anns) == 0 {
		fmt.Println("no annotations")
		return
	}
	for _, ann := range anns {
		burned := ""
		if ann.IsBurned {
			burned = " [burned]"
		}
		fmt.Printf("%s  p%d  %s%s\n", ann.ID, ann.Page, ann.Type, burned)
	}
}

// resolve use_external|merge
func (a *App) resolveConflict(ctx context.Context, args []string) {
	s := a.requireSession()
	if s == nil {
		return
	}
	if len(args) != 1 {
		fmt.Println("usage: resolve use_external|merge")
		return
	}
	res := merge.Resolution(args[0])
	if res != merge.ResolveUseExternal && res != merge.ResolveMerge {
		fmt.Println("usage: resolve use_external|merge")
		return
	}
	if err := s.engine.Resolve(ctx, res, s.data); err != nil {
		fmt.Printf("resolve failed: %v\n", err)
		return
	}
	fmt.Println("conflict resolved")
}

// saveDoc runs the save orchestrator on the open session. A pending content
// conflict blocks the save: committing would replace the audit baseline and
// bury the divergence without an explicit resolution.
func (a *App) saveDoc(ctx context.Context) {
	s := a.requireSession()
	if s == nil {
		return
	}
	if s.engine.ConflictPending() {
		fmt.Println("content changed outside this device; save blocked")
		fmt.Println("use 'resolve use_external' or 'resolve merge' first")
		return
	}

	words, semantic, err := a.loadOcrLayers(ctx, s.id)
	if err != nil {
		fmt.Printf("save failed: %v\n", err)
		return
	}

	res, err := a.orch.Save(ctx, save.Request{
		Doc: models.Document{
			ID:       s.id,
			Name:     s.name,
			MimeType: s.mimeType,
			Blob:     s.data,
		},
		Password:    s.password,
		Annotations: s.engine.Merged(),
		PageOffset:  s.engine.PageOffset(),
		Words:       words,
		Semantic:    semantic,
	})
	if err != nil {
		fmt.Printf("save failed: %v\n", err)
		return
	}

	switch res.Mode {
	case save.ModeDeferred:
		fmt.Println("another save is in progress; try again shortly")
		return
	case save.ModeRemote:
		fmt.Println("saved and synced")
	case save.ModeQueued:
		fmt.Println("saved locally; sync queued")
	case save.ModeLocal:
		fmt.Println("saved locally")
	}
	if res.Wrapped {
		fmt.Println("document is protected: saved as a portable package")
	}
	if res.Copied {
		fmt.Println("original was not writable: saved as a copy")
	}
	s.id = res.ID
}

// loadOcrLayers collects the cached OCR words and semantic text per page.
func (a *App) loadOcrLayers(ctx context.Context, id string) (map[int][]models.OcrWord, map[int]models.SemanticPage, error) {
	recs, err := a.content.OcrByFile(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	words := make(map[int][]models.OcrWord)
	semantic := make(map[int]models.SemanticPage)
	for _, rec := range recs {
		if len(rec.Words) > 0 {
			words[rec.Page] = rec.Words
		}
		if rec.Markdown != "" {
			semantic[rec.Page] = models.SemanticPage{
				Markdown:    rec.Markdown,
				ProcessedAt: rec.ProcessedAt.UnixMilli(),
			}
		}
	}
	return words, semantic, nil
}

func reportDecline(d merge.Decline) {
	switch d {
	case merge.DeclineNone:
		fmt.Println("ok")
	case merge.DeclineBurned:
		fmt.Println("declined: annotation is burned into the document")
	case merge.DeclineConflict:
		fmt.Println("declined: resolve the content conflict first")
	case merge.DeclineChecking:
		fmt.Println("declined: integrity check still running, retry")
	case merge.DeclineNoID:
		fmt.Println("declined: annotation has no id")
	}
}
