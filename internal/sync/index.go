package sync

import (
	"github.com/kimhsiao/setforge/backend/internal/logging"
	"github.com/kimhsiao/setforge/backend/internal/models"
)

// Entity types form a closed enum. Sessions are the aggregate root; exercises
// and sets hang off them through the relation table below. Template updates
// never join a group and always sync per item.
const (
	EntityTypeSession  = "session"
	EntityTypeExercise = "session_exercise"
	EntityTypeSet      = "exercise_set"
	EntityTypeTemplate = "template"
)

// Operations accepted on a queue item.
const (
	OperationInsert = "insert"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// relation declares which payload field links a child type to its referent.
// An exercise carries its session id directly; a set only carries its owning
// exercise id, so its session is resolved through that exercise (one hop).
type relation struct {
	field  string
	parent string
}

var relations = map[string]relation{
	EntityTypeExercise: {field: "session_id", parent: EntityTypeSession},
	EntityTypeSet:      {field: "session_exercise_id", parent: EntityTypeExercise},
}

// maxRelationHops bounds transitive resolution. The deepest chain today is
// set -> exercise -> session.
const maxRelationHops = 2

// Group is one run-scoped aggregation: a parent session mutation plus the
// child mutations that reference it. A group whose parent is absent from the
// snapshot cannot use the composite remote call and falls back to per-item
// dispatch.
type Group struct {
	ParentID      string
	Parent        *models.SyncQueueItem
	Children      []*models.SyncQueueItem // session_exercise items
	Grandchildren []*models.SyncQueueItem // exercise_set items
}

// Members returns all items in the group, parent first.
func (g *Group) Members() []*models.SyncQueueItem {
	members := make([]*models.SyncQueueItem, 0, 1+len(g.Children)+len(g.Grandchildren))
	if g.Parent != nil {
		members = append(members, g.Parent)
	}
	members = append(members, g.Children...)
	members = append(members, g.Grandchildren...)
	return members
}

// Index is an id->item map over one run's queue snapshot, with payloads
// decoded once up front.
type Index struct {
	byID     map[string]*models.SyncQueueItem
	payloads map[string]map[string]interface{}
}

// BuildIndex decodes every item's payload and indexes items by id. An item
// whose payload does not decode stays in the index with a nil payload; it
// will end up in the ungrouped bucket and fail per item.
func BuildIndex(items []*models.SyncQueueItem) *Index {
	ix := &Index{
		byID:     make(map[string]*models.SyncQueueItem, len(items)),
		payloads: make(map[string]map[string]interface{}, len(items)),
	}
	for _, item := range items {
		id := string(item.ID)
		ix.byID[id] = item
		payload, err := item.PayloadMap()
		if err != nil {
			logging.Warn("Queue item payload does not decode", map[string]interface{}{
				"id":   id,
				"type": item.EntityType,
			})
			continue
		}
		ix.payloads[id] = payload
	}
	return ix
}

// Payload returns the decoded payload for an item id, or nil.
func (ix *Index) Payload(id string) map[string]interface{} {
	return ix.payloads[id]
}

// resolveParent resolves the owning session id for a child item by walking
// the relation table, borrowing the link from a sibling in the same snapshot
// when the item's own payload lacks it. Returns false when the chain breaks.
func (ix *Index) resolveParent(item *models.SyncQueueItem) (string, bool) {
	current := item
	for hop := 0; hop < maxRelationHops; hop++ {
		rel, ok := relations[current.EntityType]
		if !ok {
			return "", false
		}

		payload := ix.payloads[string(current.ID)]
		if payload == nil {
			return "", false
		}
		ref, ok := payload[rel.field].(string)
		if !ok || ref == "" {
			return "", false
		}

		if rel.parent == EntityTypeSession {
			return ref, true
		}

		// The referent is itself a child kind; it must be present in this
		// run's snapshot to borrow its link.
		sibling, ok := ix.byID[ref]
		if !ok || sibling.EntityType != rel.parent {
			return "", false
		}
		current = sibling
	}
	return "", false
}

// Partition splits a FIFO-ordered snapshot into session groups and an
// ungrouped bucket. Group order follows first appearance in the snapshot, so
// the best-effort global FIFO survives grouping.
func Partition(items []*models.SyncQueueItem) ([]*Group, []*models.SyncQueueItem) {
	ix := BuildIndex(items)

	var order []string
	groups := make(map[string]*Group)
	var ungrouped []*models.SyncQueueItem

	groupFor := func(parentID string) *Group {
		g, ok := groups[parentID]
		if !ok {
			g = &Group{ParentID: parentID}
			groups[parentID] = g
			order = append(order, parentID)
		}
		return g
	}

	for _, item := range items {
		switch item.EntityType {
		case EntityTypeSession:
			g := groupFor(string(item.ID))
			g.Parent = item
		case EntityTypeExercise, EntityTypeSet:
			parentID, ok := ix.resolveParent(item)
			if !ok {
				ungrouped = append(ungrouped, item)
				continue
			}
			g := groupFor(parentID)
			if item.EntityType == EntityTypeExercise {
				g.Children = append(g.Children, item)
			} else {
				g.Grandchildren = append(g.Grandchildren, item)
			}
		default:
			// Standalone kinds (template updates) sync per item.
			ungrouped = append(ungrouped, item)
		}
	}

	ordered := make([]*Group, 0, len(order))
	for _, parentID := range order {
		ordered = append(ordered, groups[parentID])
	}
	return ordered, ungrouped
}
