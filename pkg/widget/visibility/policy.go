package visibility

// Input is everything the policy looks at.
type Input struct {
	LauncherEnabled     bool
	LauncherForced      bool
	Rules               Rules
	Path                string
	DrawerOpen          bool
	CloseOnOutsideClick bool
}

// Output is the derived visibility of every surface.
type Output struct {
	// LauncherEligible ignores the drawer state.
	LauncherEligible bool
	LauncherVisible  bool
	BackdropVisible  bool
	// HideTargets is true when host-page hide targets must be hidden.
	HideTargets bool
}

// Compute derives the visibility. Launcher and drawer are mutually
// exclusive; a forced launcher ignores path rules.
func Compute(in Input) Output {
	eligible := in.LauncherEnabled &&
		(in.LauncherForced || len(in.Rules) == 0 || in.Rules.Match(in.Path))
	launcher := eligible && !in.DrawerOpen
	return Output{
		LauncherEligible: eligible,
		LauncherVisible:  launcher,
		BackdropVisible:  in.DrawerOpen && in.CloseOnOutsideClick,
		HideTargets:      launcher || in.DrawerOpen,
	}
}
