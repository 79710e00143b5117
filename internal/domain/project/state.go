package project

// State is the position of a project in the iteration workflow.
type State string

const (
	StateInitializationWithoutModelization     State = "INITIALIZATION_WITHOUT_MODELIZATION"
	StateInitializationWithPendingModelization State = "INITIALIZATION_WITH_PENDING_MODELIZATION_CHANGES"
	StateInitializationWithWorkingModelization State = "INITIALIZATION_WITH_WORKING_MODELIZATION"
	StateInitializationWithErrors              State = "INITIALIZATION_WITH_ERRORS"
	StateSamplingTodo                          State = "SAMPLING_TODO"
	StateSamplingWorking                       State = "SAMPLING_WORKING"
	StateSamplingPending                       State = "SAMPLING_PENDING"
	StateAnnotationWithUpToDateModelization    State = "ANNOTATION_WITH_UPTODATE_MODELIZATION"
	StateAnnotationWithOutdatedModelization    State = "ANNOTATION_WITH_OUTDATED_MODELIZATION"
	StateAnnotationWithPendingModelization     State = "ANNOTATION_WITH_PENDING_MODELIZATION_CHANGES"
	StateAnnotationWithWorkingModelization     State = "ANNOTATION_WITH_WORKING_MODELIZATION"
	StateAnnotationWithErrors                  State = "ANNOTATION_WITH_ERRORS"
	StateClusteringTodo                        State = "CLUSTERING_TODO"
	StateClusteringWorking                     State = "CLUSTERING_WORKING"
	StateClusteringPending                     State = "CLUSTERING_PENDING"
	StateClusteringWithErrors                  State = "CLUSTERING_WITH_ERRORS"
	StateIterationEnd                          State = "ITERATION_END"
)

// StateKind classifies a state by what the project may do while in it.
type StateKind string

const (
	KindIdle     StateKind = "idle"
	KindWorking  StateKind = "working"
	KindTerminal StateKind = "terminal"
)

var stateKinds = map[State]StateKind{
	StateInitializationWithoutModelization:     KindIdle,
	StateInitializationWithPendingModelization: KindIdle,
	StateInitializationWithWorkingModelization: KindWorking,
	StateInitializationWithErrors:              KindIdle,
	StateSamplingTodo:                          KindIdle,
	StateSamplingWorking:                       KindWorking,
	StateSamplingPending:                       KindIdle,
	StateAnnotationWithUpToDateModelization:    KindIdle,
	StateAnnotationWithOutdatedModelization:    KindIdle,
	StateAnnotationWithPendingModelization:     KindIdle,
	StateAnnotationWithWorkingModelization:     KindWorking,
	StateAnnotationWithErrors:                  KindIdle,
	StateClusteringTodo:                        KindIdle,
	StateClusteringWorking:                     KindWorking,
	StateClusteringPending:                     KindIdle,
	StateClusteringWithErrors:                  KindIdle,
	StateIterationEnd:                          KindTerminal,
}

// AllStates lists every state in workflow order.
func AllStates() []State {
	return []State{
		StateInitializationWithoutModelization,
		StateInitializationWithPendingModelization,
		StateInitializationWithWorkingModelization,
		StateInitializationWithErrors,
		StateSamplingTodo,
		StateSamplingWorking,
		StateSamplingPending,
		StateAnnotationWithUpToDateModelization,
		StateAnnotationWithOutdatedModelization,
		StateAnnotationWithPendingModelization,
		StateAnnotationWithWorkingModelization,
		StateAnnotationWithErrors,
		StateClusteringTodo,
		StateClusteringWorking,
		StateClusteringPending,
		StateClusteringWithErrors,
		StateIterationEnd,
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := stateKinds[s]
	return ok
}

// Kind returns the state's kind.
func (s State) Kind() StateKind {
	return stateKinds[s]
}

// Working reports whether a background task owns the project.
func (s State) Working() bool {
	return s.Kind() == KindWorking
}

// Idle reports whether the project accepts actions. The terminal state is idle.
func (s State) Idle() bool {
	k := s.Kind()
	return k == KindIdle || k == KindTerminal
}

// TaskKind identifies a background computation.
type TaskKind string

const (
	TaskModelization TaskKind = "modelization"
	TaskSampling     TaskKind = "sampling"
	TaskClustering   TaskKind = "clustering"
)

// taskKindOf returns the task owning a working state.
func taskKindOf(s State) (TaskKind, bool) {
	switch s {
	case StateInitializationWithWorkingModelization, StateAnnotationWithWorkingModelization:
		return TaskModelization, true
	case StateSamplingWorking:
		return TaskSampling, true
	case StateClusteringWorking:
		return TaskClustering, true
	}
	return "", false
}

// failureState is where a task lands when it fails or is interrupted.
func failureState(kind TaskKind, iteration int) State {
	switch kind {
	case TaskModelization:
		if iteration == 0 {
			return StateInitializationWithErrors
		}
		return StateAnnotationWithErrors
	case TaskSampling:
		return StateSamplingTodo
	default:
		return StateClusteringWithErrors
	}
}
