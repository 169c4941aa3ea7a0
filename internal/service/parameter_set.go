package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/destination"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
	"github.com/penshort/shortlink/internal/utm"
)

var machineNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

const maxMachineNameLength = 64

// ParameterSetService manages parameter sets.
type ParameterSetService struct {
	store    repository.ParameterSetStore
	resolver *utm.Resolver
	logger   *zap.Logger
}

// NewParameterSetService creates a new ParameterSetService.
func NewParameterSetService(store repository.ParameterSetStore, resolver *utm.Resolver, logger *zap.Logger) *ParameterSetService {
	return &ParameterSetService{
		store:    store,
		resolver: resolver,
		logger:   logger.With(zap.String("component", "service.parameter_set")),
	}
}

// Create validates and persists a new parameter set.
func (s *ParameterSetService) Create(ctx context.Context, set *model.ParameterSet) (*model.ParameterSet, error) {
	const op = "parameter_set.create"
	normalizeSet(set)
	if msgs := validateSet(set); len(msgs) > 0 {
		return nil, invalid(op, msgs...)
	}
	if err := s.store.CreateParameterSet(ctx, set); err != nil {
		return nil, storeErr(op, err)
	}
	s.logger.Info("parameter_set_created", zap.String("parameter_set_id", set.ID))
	return s.get(ctx, op, set.ID)
}

// Update replaces an existing parameter set.
func (s *ParameterSetService) Update(ctx context.Context, set *model.ParameterSet) (*model.ParameterSet, error) {
	const op = "parameter_set.update"
	normalizeSet(set)
	if msgs := validateSet(set); len(msgs) > 0 {
		return nil, invalid(op, msgs...)
	}
	if err := s.store.UpdateParameterSet(ctx, set); err != nil {
		return nil, storeErr(op, err)
	}
	s.logger.Info("parameter_set_updated", zap.String("parameter_set_id", set.ID))
	return s.get(ctx, op, set.ID)
}

// Get returns a parameter set by id.
func (s *ParameterSetService) Get(ctx context.Context, id string) (*model.ParameterSet, error) {
	return s.get(ctx, "parameter_set.get", id)
}

func (s *ParameterSetService) get(ctx context.Context, op, id string) (*model.ParameterSet, error) {
	set, err := s.store.GetParameterSet(ctx, id)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return set, nil
}

// List returns every parameter set.
func (s *ParameterSetService) List(ctx context.Context) ([]*model.ParameterSet, error) {
	sets, err := s.store.ListParameterSets(ctx)
	if err != nil {
		return nil, storeErr("parameter_set.list", err)
	}
	return sets, nil
}

// Delete removes a parameter set. Shortlinks using it keep working without parameters.
func (s *ParameterSetService) Delete(ctx context.Context, id string) error {
	const op = "parameter_set.delete"
	if err := s.store.DeleteParameterSet(ctx, id); err != nil {
		return storeErr(op, err)
	}
	s.logger.Info("parameter_set_deleted", zap.String("parameter_set_id", id))
	return nil
}

// Preview resolves the parameters of a set for an example shortlink.
func (s *ParameterSetService) Preview(ctx context.Context, id, slug string) ([]utm.Pair, error) {
	set, err := s.get(ctx, "parameter_set.preview", id)
	if err != nil {
		return nil, err
	}
	if slug == "" {
		slug = "example"
	}
	sample := &model.Shortlink{Path: model.FullPath("", slug), Label: set.Label}
	return s.resolver.Resolve(set, destination.TokenData(sample, nil)).Pairs(), nil
}

func normalizeSet(set *model.ParameterSet) {
	set.ID = strings.TrimSpace(set.ID)
	set.Label = strings.TrimSpace(set.Label)
	set.Source = strings.TrimSpace(set.Source)
	set.Medium = strings.TrimSpace(set.Medium)
	set.Campaign = strings.TrimSpace(set.Campaign)
	set.Term = strings.TrimSpace(set.Term)
	set.Content = strings.TrimSpace(set.Content)

	custom := set.CustomParameters[:0]
	for _, raw := range set.CustomParameters {
		if raw = strings.TrimSpace(raw); raw != "" {
			custom = append(custom, raw)
		}
	}
	set.CustomParameters = custom
}

func validateSet(set *model.ParameterSet) []string {
	var msgs []string
	switch {
	case set.ID == "":
		msgs = append(msgs, "A machine name is required.")
	case len(set.ID) > maxMachineNameLength:
		msgs = append(msgs, fmt.Sprintf("The machine name may be at most %d characters.", maxMachineNameLength))
	case !machineNamePattern.MatchString(set.ID):
		msgs = append(msgs, "The machine name may only contain lowercase letters, numbers, and underscores.")
	}
	if set.Label == "" {
		msgs = append(msgs, "A label is required.")
	}
	for _, raw := range set.CustomParameters {
		if _, _, ok := utm.ParseCustom(raw); !ok {
			msgs = append(msgs, fmt.Sprintf("Custom parameter %q must use the key:value format.", raw))
		}
	}
	return msgs
}
