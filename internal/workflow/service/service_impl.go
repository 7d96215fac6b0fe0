package service

import (
	"context"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/clock"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
	"github.com/smallbiznis/procurelink/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultLineageDepth = 5
	maxLineageDepth     = 20
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  workflowdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  workflowdomain.Repository
}

func NewService(p Params) workflowdomain.Service {
	return &Service{
		log:   p.Log.Named("workflow.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Register creates the reference once; later calls return the stored row
// untouched, since lineage entries are never rewritten.
func (s *Service) Register(ctx context.Context, ref workflowdomain.WorkflowReference) (*workflowdomain.WorkflowReference, error) {
	key := workflowdomain.Key{Type: ref.Type, ID: strings.TrimSpace(ref.ID)}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.hydrate(ctx, *existing)
	}

	date := ref.Date
	if date.IsZero() {
		date = s.clock.Now()
	}
	row := workflowdomain.Reference{
		ID:         s.genID.Generate(),
		RecordType: key.Type,
		RecordID:   key.ID,
		Number:     strings.TrimSpace(ref.Number),
		Status:     strings.TrimSpace(ref.Status),
		RecordDate: date.UTC(),
		Amount:     ref.Amount,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, &row); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Lost a race with a concurrent Register for the same record.
		existing, err := s.repo.FindByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, workflowdomain.ErrNotFound
		}
		row = *existing
	}

	out := row.ToWorkflowReference()
	return &out, nil
}

// Link appends child under parent. Existing edges are a no-op; edges that
// run against causal order or would close a cycle are rejected.
func (s *Service) Link(ctx context.Context, parentKey, childKey workflowdomain.Key) error {
	if err := parentKey.Validate(); err != nil {
		return err
	}
	if err := childKey.Validate(); err != nil {
		return err
	}
	if parentKey == childKey {
		return workflowdomain.ErrSelfLink
	}
	if childKey.Type.Rank() < parentKey.Type.Rank() {
		return workflowdomain.ErrCausalOrder
	}

	parent, err := s.mustFind(ctx, parentKey)
	if err != nil {
		return err
	}
	child, err := s.mustFind(ctx, childKey)
	if err != nil {
		return err
	}

	reachable, err := s.reachable(ctx, child.ID, parent.ID)
	if err != nil {
		return err
	}
	if reachable {
		return workflowdomain.ErrCycle
	}

	if err := s.repo.InsertLink(ctx, &workflowdomain.ReferenceLink{
		ID:        s.genID.Generate(),
		ParentID:  parent.ID,
		ChildID:   child.ID,
		CreatedAt: s.clock.Now(),
	}); err != nil {
		return err
	}

	s.log.Debug("reference linked",
		zap.String("parent", parentKey.String()),
		zap.String("child", childKey.String()),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, key workflowdomain.Key) (*workflowdomain.WorkflowReference, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	row, err := s.mustFind(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, *row)
}

// Lineage walks parents or children breadth first. The graph is only checked
// for cycles when links are added, so the walk keeps its own visited set.
func (s *Service) Lineage(ctx context.Context, key workflowdomain.Key, direction workflowdomain.Direction, depth int) (*workflowdomain.Lineage, error) {
	if direction != workflowdomain.DirectionParents && direction != workflowdomain.DirectionChildren {
		return nil, workflowdomain.ErrInvalidDirection
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	depth = clampDepth(depth)

	root, err := s.mustFind(ctx, key)
	if err != nil {
		return nil, err
	}

	type queueItem struct {
		row   workflowdomain.Reference
		from  *workflowdomain.Key
		depth int
		path  []snowflake.ID
	}

	result := &workflowdomain.Lineage{Root: key, Direction: direction}
	visited := map[snowflake.ID]bool{root.ID: true}
	queue := []queueItem{{row: *root, depth: 0, path: []snowflake.ID{root.ID}}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		nextIDs, err := s.neighbours(ctx, item.row.ID, direction)
		if err != nil {
			return nil, err
		}

		cycle := false
		var expand []snowflake.ID
		for _, id := range nextIDs {
			if slices.Contains(item.path, id) {
				cycle = true
				continue
			}
			if visited[id] {
				continue
			}
			if item.depth >= depth {
				result.Truncated = true
				continue
			}
			visited[id] = true
			expand = append(expand, id)
		}

		if len(expand) > 0 {
			rows, err := s.repo.FindByIDs(ctx, expand)
			if err != nil {
				return nil, err
			}
			byID := make(map[snowflake.ID]workflowdomain.Reference, len(rows))
			for _, row := range rows {
				byID[row.ID] = row
			}
			from := item.row.Key()
			for _, id := range expand {
				row, ok := byID[id]
				if !ok {
					continue
				}
				path := append(slices.Clone(item.path), id)
				queue = append(queue, queueItem{row: row, from: &from, depth: item.depth + 1, path: path})
			}
		}

		if cycle {
			result.CycleDetected = true
		}
		result.Steps = append(result.Steps, workflowdomain.LineageStep{
			Depth:         item.depth,
			From:          item.from,
			Reference:     item.row.ToWorkflowReference(),
			CycleDetected: cycle,
		})
	}

	return result, nil
}

func (s *Service) mustFind(ctx context.Context, key workflowdomain.Key) (*workflowdomain.Reference, error) {
	row, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, workflowdomain.ErrNotFound
	}
	return row, nil
}

func (s *Service) hydrate(ctx context.Context, row workflowdomain.Reference) (*workflowdomain.WorkflowReference, error) {
	out := row.ToWorkflowReference()

	parentIDs, err := s.repo.ParentIDs(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	parents, err := s.repo.FindByIDs(ctx, parentIDs)
	if err != nil {
		return nil, err
	}
	for _, p := range parents {
		out.ParentReferences = append(out.ParentReferences, p.ToWorkflowReference())
	}

	childIDs, err := s.repo.ChildIDs(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	children, err := s.repo.FindByIDs(ctx, childIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		out.ChildReferences = append(out.ChildReferences, c.ToWorkflowReference())
	}
	return &out, nil
}

func (s *Service) neighbours(ctx context.Context, id snowflake.ID, direction workflowdomain.Direction) ([]snowflake.ID, error) {
	if direction == workflowdomain.DirectionParents {
		return s.repo.ParentIDs(ctx, id)
	}
	return s.repo.ChildIDs(ctx, id)
}

// reachable reports whether target is a descendant of (or equal to) from.
func (s *Service) reachable(ctx context.Context, from, target snowflake.ID) (bool, error) {
	visited := map[snowflake.ID]bool{from: true}
	queue := []snowflake.ID{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == target {
			return true, nil
		}
		children, err := s.repo.ChildIDs(ctx, current)
		if err != nil {
			return false, err
		}
		for _, id := range children {
			if !visited[id] {
				visited[id] = true
				queue = append(queue, id)
			}
		}
	}
	return false, nil
}

func clampDepth(depth int) int {
	if depth <= 0 {
		return defaultLineageDepth
	}
	if depth > maxLineageDepth {
		return maxLineageDepth
	}
	return depth
}
