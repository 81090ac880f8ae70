// Package ordering assigns and shifts the integer positions of lists and
// cards. Positions are unique within a container and strictly increasing in
// display order, but not necessarily contiguous: deletions leave gaps and
// nothing renumbers them.
package ordering

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Kind names the table a position sequence lives in.
type Kind string

const (
	KindList Kind = "lists"
	KindCard Kind = "cards"
)

// Container is the scope in which sibling positions must be unique: the
// single global sequence of lists, or the cards of one list.
type Container struct {
	Kind   Kind
	ListID int64
}

func Lists() Container {
	return Container{Kind: KindList}
}

func CardsIn(listID int64) Container {
	return Container{Kind: KindCard, ListID: listID}
}

func (c Container) String() string {
	if c.Kind == KindCard {
		return "cards:" + strconv.FormatInt(c.ListID, 10)
	}
	return string(c.Kind)
}

// Sibling is the ordering-relevant projection of a list or card row.
type Sibling struct {
	ID       int64
	Position int64
}

// Reader lists the members of a container sorted by position.
type Reader interface {
	Siblings(ctx context.Context, c Container) ([]Sibling, error)
}

// Writer is an open atomic unit. Lock must hold until the unit ends.
//
// Shift bumps by one the position of every current member of c at or after
// from, except exclude, in a single statement evaluated against the rows as
// they are when it runs. Place writes one item's container and position.
type Writer interface {
	Reader
	Lock(ctx context.Context, c Container) error
	Shift(ctx context.Context, c Container, from, exclude int64) error
	Place(ctx context.Context, c Container, id, position int64) error
}

// AppendPosition returns the position that sorts after every current member
// of c: the maximum position plus one, or 0 for an empty container.
func AppendPosition(ctx context.Context, r Reader, c Container) (int64, error) {
	siblings, err := r.Siblings(ctx, c)
	if err != nil {
		return 0, err
	}
	next := int64(0)
	for _, s := range siblings {
		if s.Position >= next {
			next = s.Position + 1
		}
	}
	return next, nil
}

// Append locks c and returns its append position. The caller inserts the new
// row through the same Writer.
func Append(ctx context.Context, w Writer, c Container) (int64, error) {
	if err := w.Lock(ctx, c); err != nil {
		return 0, err
	}
	return AppendPosition(ctx, w, c)
}

// LockAll locks every distinct container in cs in ascending key order, so
// units that lock overlapping sets always wait on each other in the same
// order.
func LockAll(ctx context.Context, w Writer, cs ...Container) error {
	keys := make(map[string]Container, len(cs))
	for _, c := range cs {
		keys[c.String()] = c
	}
	ordered := make([]string, 0, len(keys))
	for key := range keys {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)
	for _, key := range ordered {
		if err := w.Lock(ctx, keys[key]); err != nil {
			return err
		}
	}
	return nil
}

// MoveTo places item id into container c at target. Every other member of c
// at or after target is shifted up by one first, so no two members ever
// share a position. Targets past the end are taken as-is.
//
// Only the moving item's row has its container rewritten. Members that
// leave or are deleted from c concurrently are simply not shifted.
func MoveTo(ctx context.Context, w Writer, c Container, id, target int64) error {
	if err := w.Lock(ctx, c); err != nil {
		return err
	}
	if err := w.Shift(ctx, c, target, id); err != nil {
		return fmt.Errorf("shift %s from %d: %w", c, target, err)
	}
	if err := w.Place(ctx, c, id, target); err != nil {
		return fmt.Errorf("place %d in %s: %w", id, c, err)
	}
	return nil
}

// Rank is the 0-based display index of position among siblings: the number
// of siblings with a strictly lesser position.
func Rank(siblings []Sibling, position int64) int {
	rank := 0
	for _, s := range siblings {
		if s.Position < position {
			rank++
		}
	}
	return rank
}

// PositionForIndex translates a 0-based display index into the position a
// MoveTo should target so the item ends up at that index. Past the end it
// returns the append position. The item being moved is excluded.
func PositionForIndex(siblings []Sibling, id int64, index int) int64 {
	others := make([]Sibling, 0, len(siblings))
	next := int64(0)
	for _, s := range siblings {
		if s.ID == id {
			continue
		}
		others = append(others, s)
		if s.Position >= next {
			next = s.Position + 1
		}
	}
	if index < 0 {
		index = 0
	}
	if index >= len(others) {
		return next
	}
	return others[index].Position
}
