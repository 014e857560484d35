package session

import (
	"fmt"

	"github.com/studydeck/studydeck-exam/internal/registry"
)

// navigator tracks the active question pointer over the flattened paper.
// Section order is fixed at registry construction; crossing a section
// boundary with next/prev is implicit in the flattened order.
type navigator struct {
	reg     *registry.Registry
	order   []string
	indexOf map[string]int
	section map[string]string // questionID -> sectionID
	pos     int
}

func newNavigator(reg *registry.Registry) *navigator {
	order := reg.QuestionIDs()
	idx := make(map[string]int, len(order))
	sec := make(map[string]string, len(order))
	for i, id := range order {
		idx[id] = i
	}
	for _, s := range reg.Sections() {
		for _, id := range s.QuestionIDs {
			sec[id] = s.ID
		}
	}
	return &navigator{reg: reg, order: order, indexOf: idx, section: sec}
}

func (n *navigator) current() string { return n.order[n.pos] }

func (n *navigator) currentSection() registry.Section {
	s, _ := n.reg.SectionOf(n.current())
	return s
}

// next advances to the following question; at the last question of the last
// section it is a no-op. Reports whether the pointer moved.
func (n *navigator) next() bool {
	if n.pos+1 >= len(n.order) {
		return false
	}
	n.pos++
	return true
}

func (n *navigator) prev() bool {
	if n.pos == 0 {
		return false
	}
	n.pos--
	return true
}

func (n *navigator) goTo(questionID string) error {
	i, ok := n.indexOf[questionID]
	if !ok {
		return fmt.Errorf("unknown question %s", questionID)
	}
	n.pos = i
	return nil
}

// advanceSection jumps to the first question of the section after the given
// one. Reports false when sectionID is the last section.
func (n *navigator) advanceSection(sectionID string) bool {
	secs := n.reg.Sections()
	for i, s := range secs {
		if s.ID == sectionID {
			if i+1 >= len(secs) {
				return false
			}
			n.pos = n.indexOf[secs[i+1].QuestionIDs[0]]
			return true
		}
	}
	return false
}
