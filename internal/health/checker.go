// Package health audits shortlink destinations. It is an offline job and is
// never called from the redirect path.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/penshort/shortlink/internal/destination"
	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

// RequestTimeout bounds each outbound HEAD request.
const RequestTimeout = 5 * time.Second

const pageSize = 200

// Store is the persistence the checker needs.
type Store interface {
	ListShortlinks(ctx context.Context, filter repository.ShortlinkFilter, afterID int64, limit int) ([]*model.Shortlink, error)
	GetTarget(ctx context.Context, entityType, entityID string) (*model.Target, error)
	ReplaceBrokenFlags(ctx context.Context, ids []int64) error
}

// PathValidator reports whether an internal path leads somewhere.
type PathValidator interface {
	IsValidPath(ctx context.Context, path string) (bool, error)
}

// DestinationResolver resolves the URL a shortlink redirects to.
type DestinationResolver interface {
	Resolve(ctx context.Context, s *model.Shortlink) (destination.Resolved, error)
}

// Options tune outbound checks.
type Options struct {
	RPS         float64
	Concurrency int
	Client      *http.Client
}

// Checker audits shortlinks for broken destinations and redirect chains.
type Checker struct {
	store    Store
	paths    PathValidator
	resolver DestinationResolver
	client   *http.Client
	limiter  *rate.Limiter
	workers  int
	logger   *zap.Logger
	metrics  metrics.Recorder
}

// NewChecker creates a Checker.
func NewChecker(store Store, paths PathValidator, resolver DestinationResolver, opts Options, logger *zap.Logger, recorder metrics.Recorder) *Checker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: RequestTimeout}
	}
	// Copy so the no-redirect policy never leaks into a shared client.
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if c.Timeout == 0 || c.Timeout > RequestTimeout {
		c.Timeout = RequestTimeout
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	return &Checker{
		store:    store,
		paths:    paths,
		resolver: resolver,
		client:   &c,
		limiter:  rate.NewLimiter(limit, 1),
		workers:  workers,
		logger:   logger.With(zap.String("component", "health.checker")),
		metrics:  recorder,
	}
}

// CheckDestinations returns the enabled shortlinks whose destination is broken, keyed by id.
func (c *Checker) CheckDestinations(ctx context.Context) (map[int64]model.DestinationIssue, error) {
	issues := make(map[int64]model.DestinationIssue)

	err := c.eachEnabled(ctx, func(s *model.Shortlink) error {
		issue, err := c.checkDestination(ctx, s)
		if err != nil {
			return err
		}
		if issue != nil {
			issues[s.ID] = *issue
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	counts := map[model.IssueType]int{
		model.IssueDeleted:     0,
		model.IssueUnpublished: 0,
		model.IssueInvalidPath: 0,
	}
	for _, issue := range issues {
		counts[issue.Type]++
	}
	for typ, n := range counts {
		c.metrics.SetDestinationIssues(string(typ), n)
	}

	c.logger.Info("destination check finished", zap.Int("issues", len(issues)))
	return issues, nil
}

func (c *Checker) checkDestination(ctx context.Context, s *model.Shortlink) (*model.DestinationIssue, error) {
	newIssue := func(typ model.IssueType, msg string) *model.DestinationIssue {
		return &model.DestinationIssue{ShortlinkID: s.ID, Label: s.Label, Path: s.Path, Type: typ, Message: msg}
	}

	if s.HasTarget() {
		target, err := c.store.GetTarget(ctx, s.TargetEntityType, s.TargetEntityID)
		if errors.Is(err, repository.ErrTargetNotFound) {
			return newIssue(model.IssueDeleted,
				fmt.Sprintf("Target %s:%s no longer exists.", s.TargetEntityType, s.TargetEntityID)), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load target for shortlink %d: %w", s.ID, err)
		}
		if !target.Published {
			return newIssue(model.IssueUnpublished,
				fmt.Sprintf("Target %s:%s is unpublished.", s.TargetEntityType, s.TargetEntityID)), nil
		}
		return nil, nil
	}

	override := strings.TrimSpace(s.DestinationOverride)
	if !destination.IsInternal(override) || c.paths == nil {
		return nil, nil
	}
	valid, err := c.paths.IsValidPath(ctx, override)
	if err != nil {
		return nil, fmt.Errorf("failed to validate path for shortlink %d: %w", s.ID, err)
	}
	if !valid {
		return newIssue(model.IssueInvalidPath,
			fmt.Sprintf("Destination override path '%s' is not a valid route.", override)), nil
	}
	return nil, nil
}

// CheckRedirectChains returns the enabled shortlinks whose destination answers with a 3xx.
// Unresolvable destinations and network failures are skipped.
func (c *Checker) CheckRedirectChains(ctx context.Context) (map[int64]model.RedirectChain, error) {
	var (
		mu     sync.Mutex
		chains = make(map[int64]model.RedirectChain)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	err := c.eachEnabled(ctx, func(s *model.Shortlink) error {
		dest, err := c.resolver.Resolve(ctx, s)
		if err != nil {
			c.logger.Debug("skipping unresolvable destination", zap.Int64("shortlink_id", s.ID), zap.Error(err))
			return nil
		}
		if !strings.HasPrefix(dest.URL, "http://") && !strings.HasPrefix(dest.URL, "https://") {
			return nil
		}

		g.Go(func() error {
			status, location, ok := c.head(gctx, dest.URL)
			if !ok || status < 300 || status >= 400 {
				return nil
			}
			mu.Lock()
			chains[s.ID] = model.RedirectChain{
				ShortlinkID: s.ID,
				Label:       s.Label,
				URL:         dest.URL,
				Status:      status,
				Location:    location,
			}
			mu.Unlock()
			return nil
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("redirect chain check finished", zap.Int("chains", len(chains)))
	return chains, nil
}

func (c *Checker) head(ctx context.Context, url string) (status int, location string, ok bool) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, "", false
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, "", false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("head request failed", zap.String("url", url), zap.Error(err))
		return 0, "", false
	}
	defer resp.Body.Close()

	return resp.StatusCode, resp.Header.Get("Location"), true
}

// FlagBrokenDestinations clears every broken flag and sets it exactly on the ids in issues.
func (c *Checker) FlagBrokenDestinations(ctx context.Context, issues map[int64]model.DestinationIssue) error {
	ids := make([]int64, 0, len(issues))
	for id := range issues {
		ids = append(ids, id)
	}
	if err := c.store.ReplaceBrokenFlags(ctx, ids); err != nil {
		return fmt.Errorf("failed to flag broken destinations: %w", err)
	}
	c.logger.Info("broken destinations flagged", zap.Int("count", len(ids)))
	return nil
}

func (c *Checker) eachEnabled(ctx context.Context, fn func(*model.Shortlink) error) error {
	enabled := true
	filter := repository.ShortlinkFilter{Enabled: &enabled}

	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := c.store.ListShortlinks(ctx, filter, after, pageSize)
		if err != nil {
			return fmt.Errorf("failed to list shortlinks: %w", err)
		}
		for _, s := range page {
			if err := fn(s); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}
