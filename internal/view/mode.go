// Package view holds the presentation model shared by the server-rendered
// pages: the mode of the sidebar and repository list, and the data each
// template receives.
//
// MODES:
// The same Sidebar and RepoList render the public profile (ModeView), the
// owner's dashboard (ModeEdit) and the add-repository dialog (ModePick).
// Templates never branch on the mode itself; they ask Caps() whether an
// affordance exists, so the whole policy lives in one table below.
package view

// Mode selects which affordances a Sidebar or RepoList shows.
type Mode int

const (
	ModeView Mode = iota
	ModeEdit
	ModePick
)

func (m Mode) String() string {
	switch m {
	case ModeView:
		return "view"
	case ModeEdit:
		return "edit"
	case ModePick:
		return "pick"
	}
	return "unknown"
}

// Capabilities are the affordances a mode allows.
type Capabilities struct {
	Select  bool // switch the active collection
	Create  bool // create a collection
	Rename  bool // rename a collection
	Delete  bool // delete a collection
	Reorder bool // drag collections or repositories
	Remove  bool // remove a repository from a collection
	Note    bool // edit a repository's note
	Add     bool // open the add-repository dialog
	Pick    bool // add a listed repository to the collection
}

var capabilities = map[Mode]Capabilities{
	ModeView: {Select: true},
	ModeEdit: {
		Select:  true,
		Create:  true,
		Rename:  true,
		Delete:  true,
		Reorder: true,
		Remove:  true,
		Note:    true,
		Add:     true,
	},
	ModePick: {Pick: true},
}

// Caps returns the mode's capabilities. An unknown mode allows nothing.
func (m Mode) Caps() Capabilities {
	return capabilities[m]
}
