package merge

import (
	"slices"
	"strings"
)

// tree flattens the overlay into path order and settles hardlink groups.
func (m *merger) tree() *Tree {
	out := make(map[string]*Entry)
	groups := make(map[*Entry][]string)

	m.overlay.walk(func(n *node) {
		if n.link != nil {
			groups[n.link] = append(groups[n.link], n.entry.Path)
			return
		}
		out[n.entry.Path] = n.entry
	})

	for target, links := range groups {
		m.settleLinks(out, target, links)
	}

	entries := make([]*Entry, 0, len(out))
	for _, e := range out {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return &Tree{Entries: entries}
}

// settleLinks writes one hardlink group. The member that sorts first
// carries the content and the others link to it, so every link follows its
// target in the archive. A target that was replaced or removed after the
// links were read is no longer a member; its content lives on through the
// links.
func (m *merger) settleLinks(out map[string]*Entry, target *Entry, links []string) {
	members := slices.Clone(links)
	live := m.overlay.lookup(target.Path)
	targetLive := live != nil && live.entry == target && live.link == nil
	if targetLive {
		members = append(members, target.Path)
	}
	slices.Sort(members)

	carrier := members[0]
	if targetLive && carrier == target.Path {
		out[carrier] = target
	} else {
		out[carrier] = target.clone(carrier)
		if !targetLive {
			m.logger.Debug("materialized hardlink to replaced target", "name", carrier, "target", target.Path)
		}
	}

	for _, p := range members[1:] {
		out[p] = &Entry{
			Path:     p,
			Kind:     Hardlink,
			Linkname: carrier,
			Mode:     target.Mode,
			UID:      target.UID,
			GID:      target.GID,
			Uname:    target.Uname,
			Gname:    target.Gname,
			ModTime:  target.ModTime,
			Layer:    target.Layer,
		}
	}
}
