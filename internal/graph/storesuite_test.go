package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the Store contract. Every backend runs it; each
// subtest uses a fresh graph id so backends that share state across
// subtests (Neo4j) do not interfere.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InitSchemaIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.InitSchema(ctx))
		require.NoError(t, s.InitSchema(ctx))
	})

	t.Run("UpsertNodeIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		gid := NewGraphID()

		n := Node{
			Label:       LabelProject,
			ID:          ProjectKey(gid),
			Props:       map[string]any{"graph_id": gid, "project_id": "p1"},
			CreateProps: map[string]any{"created_at": int64(100)},
		}
		require.NoError(t, s.UpsertNode(ctx, n))

		n.Props["project_id"] = "p2"
		n.CreateProps["created_at"] = int64(200)
		require.NoError(t, s.UpsertNode(ctx, n))

		got, err := s.ReadNodes(ctx, NodeFilter{Label: LabelProject, GraphID: gid})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ProjectKey(gid), got[0].ID)
		assert.Equal(t, "p2", got[0].String("project_id"), "props are updated on match")
		assert.Equal(t, 100, got[0].Int("created_at"), "create props are kept on match")
	})

	t.Run("UpsertRelationshipIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		gid := NewGraphID()
		seedFile(t, s, gid, "a.py")

		rel := NewRelationship(RelContains, ProjectKey(gid), FileKey(gid, "a.py"), map[string]any{"graph_id": gid})
		require.NoError(t, s.UpsertRelationship(ctx, rel))
		require.NoError(t, s.UpsertRelationship(ctx, rel))

		got, err := s.ReadRelationships(ctx, RelFilter{Type: RelContains, GraphID: gid})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ProjectKey(gid), got[0].From)
		assert.Equal(t, LabelProject, got[0].FromLabel)
		assert.Equal(t, FileKey(gid, "a.py"), got[0].To)
		assert.Equal(t, LabelFile, got[0].ToLabel)
	})

	t.Run("MissingEndpoint", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		gid := NewGraphID()
		seedFile(t, s, gid, "a.py")

		rel := NewRelationship(RelContains, FileKey(gid, "a.py"), ClassKey(gid, "a.py", "Ghost"), map[string]any{"graph_id": gid})
		err := s.UpsertRelationship(ctx, rel)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingEndpoint), "got %v", err)

		var we *WriteError
		assert.True(t, errors.As(err, &we))
	})

	t.Run("UnknownProperty", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		gid := NewGraphID()

		err := s.UpsertNode(ctx, Node{
			Label: LabelFile,
			ID:    FileKey(gid, "a.py"),
			Props: map[string]any{"graph_id": gid, "colour": "blue"},
		})
		assert.True(t, errors.Is(err, ErrUnknownSchema), "got %v", err)
	})

	t.Run("BatchRollback", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		gid := NewGraphID()
		boom := errors.New("boom")

		err := s.Batch(ctx, func(w Writer) error {
			if err := w.UpsertNode(ctx, Node{
				Label: LabelProject,
				ID:    ProjectKey(gid),
				Props: map[string]any{"graph_id": gid, "project_id": "p"},
			}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.ReadNodes(ctx, NodeFilter{Label: LabelProject, GraphID: gid})
		require.NoError(t, err)
		assert.Empty(t, got, "writes of a failed batch are discarded")
	})

	t.Run("BatchCommit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		gid := NewGraphID()

		require.NoError(t, s.Batch(ctx, func(w Writer) error {
			for _, p := range []string{"b.py", "a.py"} {
				if err := w.UpsertNode(ctx, Node{
					Label: LabelFile,
					ID:    FileKey(gid, p),
					Props: map[string]any{"graph_id": gid, "path": p, "language": "python", "loc": 3},
				}); err != nil {
					return err
				}
			}
			return nil
		}))

		got, err := s.ReadNodes(ctx, NodeFilter{Label: LabelFile, GraphID: gid})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a.py", got[0].String("path"), "ordered by id")
		assert.Equal(t, 3, got[0].Int("loc"))
		assert.Equal(t, "python", got[0].String("language"))
	})

	t.Run("ReadNodesFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		gid, other := NewGraphID(), NewGraphID()
		seedFile(t, s, gid, "a.py")
		seedFile(t, s, gid, "b.py")
		seedFile(t, s, other, "a.py")

		got, err := s.ReadNodes(ctx, NodeFilter{Label: LabelFile, GraphID: gid})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = s.ReadNodes(ctx, NodeFilter{Label: LabelFile, GraphID: gid, Where: map[string]any{"path": "b.py"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, FileKey(gid, "b.py"), got[0].ID)

		got, err = s.ReadNodes(ctx, NodeFilter{Label: LabelFile, GraphID: gid, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)

		_, err = s.ReadNodes(ctx, NodeFilter{Label: LabelFile, Where: map[string]any{"nope": 1}})
		assert.True(t, errors.Is(err, ErrUnknownSchema))
	})

	t.Run("BoolAndIntRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		gid := NewGraphID()

		key := FunctionKey(gid, "a.py", "Foo.bar")
		require.NoError(t, s.UpsertNode(ctx, Node{Label: LabelFunction, ID: key, Props: map[string]any{
			"graph_id":   gid,
			"name":       "bar",
			"is_method":  true,
			"start_line": 7,
		}}))

		got, err := s.ReadNodes(ctx, NodeFilter{Label: LabelFunction, GraphID: gid})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Bool("is_method"))
		assert.Equal(t, 7, got[0].Int("start_line"))
		assert.Equal(t, "bar", got[0].String("name"))
	})
}

// seedFile writes a Project node and one File node for gid.
func seedFile(t *testing.T, s Store, gid, path string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertNode(ctx, Node{
		Label: LabelProject,
		ID:    ProjectKey(gid),
		Props: map[string]any{"graph_id": gid, "project_id": "proj"},
	}))
	require.NoError(t, s.UpsertNode(ctx, Node{
		Label: LabelFile,
		ID:    FileKey(gid, path),
		Props: map[string]any{"graph_id": gid, "path": path, "language": "python", "loc": 1},
	}))
}
