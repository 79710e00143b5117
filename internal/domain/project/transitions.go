package project

// Action names an operation guarded by the state machine.
type Action string

const (
	ActionImportTexts         Action = "import_texts"
	ActionEditSettings        Action = "edit_settings"
	ActionEditGlobalSettings  Action = "edit_global_settings"
	ActionEditText            Action = "edit_text"
	ActionRunModelization     Action = "run_modelization"
	ActionStartIteration      Action = "start_iteration"
	ActionRunSampling         Action = "run_sampling"
	ActionAnnotate            Action = "annotate_constraint"
	ActionEditConstraintMeta  Action = "edit_constraint_metadata"
	ActionApproveConstraints  Action = "approve_constraints"
	ActionRunClustering       Action = "run_clustering"
	ActionCancelTask          Action = "cancel_task"
	ActionDeleteLastIteration Action = "delete_last_iteration"
	ActionRenameProject       Action = "rename_project"
	ActionDeleteProject       Action = "delete_project"
)

func states(list ...State) map[State]bool {
	m := make(map[State]bool, len(list))
	for _, s := range list {
		m[s] = true
	}
	return m
}

func idleStates(except ...State) map[State]bool {
	skip := states(except...)
	m := make(map[State]bool)
	for _, s := range AllStates() {
		if s.Idle() && !skip[s] {
			m[s] = true
		}
	}
	return m
}

func workingStates() map[State]bool {
	m := make(map[State]bool)
	for _, s := range AllStates() {
		if s.Working() {
			m[s] = true
		}
	}
	return m
}

// preStates lists, for each action, the states it may start from.
var preStates = map[Action]map[State]bool{
	ActionImportTexts: states(
		StateInitializationWithoutModelization,
		StateInitializationWithPendingModelization,
		StateInitializationWithErrors,
	),
	ActionEditSettings:       idleStates(StateClusteringPending, StateIterationEnd),
	ActionEditGlobalSettings: idleStates(),
	ActionEditText:           idleStates(StateClusteringPending, StateIterationEnd),
	ActionRunModelization: states(
		StateInitializationWithoutModelization,
		StateInitializationWithPendingModelization,
		StateInitializationWithErrors,
		StateAnnotationWithPendingModelization,
		StateAnnotationWithErrors,
		StateAnnotationWithOutdatedModelization,
	),
	ActionStartIteration: states(StateClusteringPending),
	ActionRunSampling:    states(StateSamplingTodo),
	ActionAnnotate: states(
		StateSamplingPending,
		StateAnnotationWithUpToDateModelization,
		StateAnnotationWithOutdatedModelization,
		StateAnnotationWithPendingModelization,
	),
	ActionEditConstraintMeta: idleStates(),
	ActionApproveConstraints: states(
		StateSamplingPending,
		StateAnnotationWithUpToDateModelization,
		StateAnnotationWithOutdatedModelization,
		StateClusteringTodo,
	),
	ActionRunClustering:       states(StateClusteringTodo, StateClusteringWithErrors),
	ActionCancelTask:          workingStates(),
	ActionDeleteLastIteration: idleStates(),
	ActionRenameProject:       idleStates(),
	ActionDeleteProject:       idleStates(),
}

// Allowed reports whether action may run while the project is in state.
func Allowed(action Action, state State) bool {
	return preStates[action][state]
}

func guard(action Action, state State) error {
	if !Allowed(action, state) {
		return badState(string(action), state)
	}
	return nil
}

// invalidateModelization returns the state reached when texts or modelization
// settings change, or false if such a change is not permitted.
func invalidateModelization(state State, iteration int) (State, bool) {
	if state == StateInitializationWithoutModelization {
		return state, true
	}
	if iteration == 0 {
		switch state {
		case StateInitializationWithPendingModelization,
			StateInitializationWithErrors,
			StateClusteringTodo,
			StateClusteringWithErrors:
			return StateInitializationWithPendingModelization, true
		}
		return state, false
	}
	switch state {
	case StateSamplingTodo,
		StateSamplingPending,
		StateAnnotationWithUpToDateModelization,
		StateAnnotationWithOutdatedModelization,
		StateAnnotationWithPendingModelization,
		StateAnnotationWithErrors,
		StateClusteringTodo,
		StateClusteringWithErrors:
		return StateAnnotationWithPendingModelization, true
	}
	return state, false
}

// workingStateFor returns the working state a task puts the project in.
func workingStateFor(kind TaskKind, iteration int) State {
	switch kind {
	case TaskModelization:
		if iteration == 0 {
			return StateInitializationWithWorkingModelization
		}
		return StateAnnotationWithWorkingModelization
	case TaskSampling:
		return StateSamplingWorking
	default:
		return StateClusteringWorking
	}
}

// afterAnnotationBatch returns the state once no pending pair remains.
func afterAnnotationBatch(state State) State {
	switch state {
	case StateSamplingPending,
		StateAnnotationWithUpToDateModelization,
		StateAnnotationWithOutdatedModelization:
		return StateClusteringTodo
	}
	return state
}
