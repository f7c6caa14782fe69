package container

import "time"

// ContainerID is a unique identifier for a container.
// This is the full container ID assigned by the runtime, not the short form.
type ContainerID string

// MountPath is where a run's workspace is bind-mounted inside its container.
const MountPath = "/test"

// ContainerConfig specifies container creation parameters.
type ContainerConfig struct {
	// Image is the container image (e.g., "jmeter-master:5.4.1")
	Image string

	// Name is the container name. Runs use their run ID verbatim.
	Name string

	// Env contains environment variables to set in the container
	Env map[string]string

	// Cmd is the command and arguments to run. Empty keeps the image default.
	Cmd []string

	// WorkDir is the working directory inside the container
	WorkDir string

	// Binds maps host directories to in-container paths, mounted read-write.
	Binds []Bind
}

// Bind is a host directory mounted into a container.
type Bind struct {
	Source string
	Target string
}

// String renders the bind in the runtime's "src:dst" form.
func (b Bind) String() string {
	return b.Source + ":" + b.Target
}

// State is a container lifecycle state as reported by the runtime.
type State string

const (
	StateCreated    State = "created"
	StateRestarting State = "restarting"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateExited     State = "exited"
	StateRemoving   State = "removing"
	StateDead       State = "dead"
)

// LiveStates are the states a named container can be found in while it
// still occupies its name.
var LiveStates = []State{StateCreated, StateRestarting, StateRunning, StatePaused, StateExited}

// Summary describes one container from a runtime listing.
type Summary struct {
	ID      ContainerID `json:"id"`
	Name    string      `json:"name"`
	Image   string      `json:"image"`
	State   State       `json:"state"`
	Status  string      `json:"status"`
	Created time.Time   `json:"created"`
}

// Image describes one entry of the runtime's local image catalog.
type Image struct {
	ID       string
	RepoTags []string
}

// ListFilter narrows a container listing.
type ListFilter struct {
	// Name matches the container name exactly. Empty matches every container.
	Name string

	// States restricts the listing to the given states. Empty means any state.
	States []State
}

// Matches reports whether s passes the filter.
func (f ListFilter) Matches(s Summary) bool {
	if f.Name != "" && s.Name != f.Name {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, st := range f.States {
		if s.State == st {
			return true
		}
	}
	return false
}
