package document

type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one document entering, changing inside or leaving a result set.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// Snapshot is delivered to live query listeners.
// The initial snapshot reports every document as Added.
type Snapshot struct {
	Docs    []Document
	Changes []Change
	Initial bool
}

func InitialSnapshot(docs []Document) Snapshot {
	changes := make([]Change, 0, len(docs))
	for _, d := range docs {
		changes = append(changes, Change{Kind: Added, Doc: d})
	}
	return Snapshot{Docs: docs, Changes: changes, Initial: true}
}

// Diff lists the changes turning prev into next.
// Removals come first, then additions and modifications in the order of next.
func Diff(prev, next []Document) []Change {
	before := make(map[string]Document, len(prev))
	for _, d := range prev {
		before[d.ID] = d
	}
	after := make(map[string]struct{}, len(next))
	for _, d := range next {
		after[d.ID] = struct{}{}
	}

	var changes []Change
	for _, d := range prev {
		if _, ok := after[d.ID]; !ok {
			changes = append(changes, Change{Kind: Removed, Doc: d})
		}
	}
	for _, d := range next {
		old, ok := before[d.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: Added, Doc: d})
		case !old.UpdateTime.Equal(d.UpdateTime) || !Equal(map[string]any(old.Fields), map[string]any(d.Fields)):
			changes = append(changes, Change{Kind: Modified, Doc: d})
		}
	}
	return changes
}
