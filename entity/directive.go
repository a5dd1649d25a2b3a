package entity

// Command is the tagged variant of a steering directive.
type Command string

const (
	CommandSteer         Command = "STEER"
	CommandChallenge     Command = "CHALLENGE"
	CommandDeepen        Command = "DEEPEN"
	CommandPivot         Command = "PIVOT"
	CommandFocusIntern   Command = "FOCUS_INTERN"
	CommandFocusQuestion Command = "FOCUS_QUESTION"
	CommandContinue      Command = "CONTINUE"
)

// Directive is the single steering instruction selected for a turn.
// It is produced and consumed within one turn and never persisted as
// authoritative state.
type Directive struct {
	Command     Command `json:"command"`
	Instruction string  `json:"instruction"`
	Reason      string  `json:"reason"`
	Tier        int     `json:"tier"`
}

func (c Command) Valid() bool {
	switch c {
	case CommandSteer, CommandChallenge, CommandDeepen, CommandPivot,
		CommandFocusIntern, CommandFocusQuestion, CommandContinue:
		return true
	}
	return false
}

// Valid reports whether the directive is well-formed: a known command and a
// tier in the 1..5 hierarchy.
func (d Directive) Valid() bool {
	return d.Command.Valid() && d.Tier >= 1 && d.Tier <= 5
}

// Continue is the always-applicable fallback directive.
func Continue(reason string) Directive {
	return Directive{
		Command: CommandContinue,
		Reason:  reason,
		Tier:    5,
	}
}
