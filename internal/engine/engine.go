package engine

import (
	"slices"
)

type Phase string

const (
	PhaseAwaitingProposal Phase = "awaiting_proposal"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseAwaitingMission  Phase = "awaiting_mission"
)

// Approval is a seat's response to the active proposal.
type Approval string

const (
	ApprovalUnknown Approval = ""
	ApprovalAgree   Approval = "agree"
	ApprovalReject  Approval = "reject"
)

type MissionVote string

const (
	MissionNone    MissionVote = ""
	MissionSuccess MissionVote = "success"
	MissionFail    MissionVote = "fail"
)

// State is one running game. Slices are indexed by seat.
type State struct {
	Phase         Phase
	Roles         []Role
	Mission       int
	Round         int
	MaxRounds     int
	Leader        int
	Proposal      []int
	AllowProposal bool
	ApprovalVotes []Approval
	MissionVotes  []MissionVote
	LadyTarget    int
}

type CommandType string

const (
	CmdPropose      CommandType = "Propose"
	CmdApprovalVote CommandType = "ApprovalVote"
	CmdMissionVote  CommandType = "MissionVote"
	CmdSideCheck    CommandType = "SideCheck"
	CmdAssassinate  CommandType = "Assassinate"
)

/*
	CmdPropose      -> EvtProposalSubmitted [-> EvtApprovalResult -> ...]
	CmdApprovalVote -> EvtApprovalVoteCast [-> EvtApprovalResult -> EvtRoundStarted | EvtMissionResult -> EvtRoundStarted]
	CmdMissionVote  -> EvtMissionVoteCast [-> EvtMissionResult -> EvtRoundStarted]
	CmdSideCheck    -> EvtSideCheckDone
	CmdAssassinate  -> nothing yet, the end game is not implemented
*/

type Command struct {
	Type     CommandType
	Seat     int
	Seats    []int
	Target   int
	Approval Approval
	Success  bool
}

type EventType string

const (
	EvtProposalSubmitted EventType = "ProposalSubmitted"
	EvtApprovalVoteCast  EventType = "ApprovalVoteCast"
	EvtApprovalResult    EventType = "ApprovalResult"
	EvtRoundStarted      EventType = "RoundStarted"
	EvtMissionVoteCast   EventType = "MissionVoteCast"
	EvtMissionResult     EventType = "MissionResult"
	EvtSideCheckDone     EventType = "SideCheckDone"
)

// Event never carries an individual vote value. Seq is assigned by the
// session when the event is published.
type Event struct {
	Seq      int       `json:"seq"`
	Type     EventType `json:"type"`
	Seat     int       `json:"seat"`
	Target   int       `json:"target"`
	Seats    []int     `json:"seats"`
	Voted    bool      `json:"voted,omitempty"`
	Accepted bool      `json:"accepted"`
	Success  bool      `json:"success"`
	Mission  int       `json:"mission"`
	Round    int       `json:"round"`
	Leader   int       `json:"leader"`
}

// Apply validates cmd against s and returns the emitted events and the next
// state. On error the original state is returned untouched and no events.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if len(s.Roles) == 0 {
		return nil, s, ErrInvalidSetup
	}
	if !validSeat(s, cmd.Seat) {
		return nil, s, ErrInvalidSeat
	}

	t := &transition{s: s.clone()}

	switch cmd.Type {
	case CmdPropose:
		if !s.AllowProposal {
			return nil, s, ErrProposalsClosed
		}
		if err := checkProposal(s, cmd.Seats); err != nil {
			return nil, s, err
		}

		// Only the leader's proposal becomes the active one; anyone else's is
		// still announced.
		if cmd.Seat == s.Leader {
			t.s.Proposal = slices.Clone(cmd.Seats)
			t.s.Phase = PhaseAwaitingApproval
		}
		t.emit(Event{Type: EvtProposalSubmitted, Seat: cmd.Seat, Seats: slices.Clone(cmd.Seats)})

		// Votes may already be in before the proposal arrives.
		t.maybeResolveApproval()
		return t.events, t.s, nil

	case CmdApprovalVote:
		if cmd.Approval != ApprovalAgree && cmd.Approval != ApprovalReject {
			return nil, s, ErrInvalidVote
		}

		t.s.ApprovalVotes[cmd.Seat] = cmd.Approval
		t.emit(Event{Type: EvtApprovalVoteCast, Seat: cmd.Seat, Voted: true})

		t.maybeResolveApproval()
		return t.events, t.s, nil

	case CmdMissionVote:
		if s.Phase != PhaseAwaitingMission || !slices.Contains(s.Proposal, cmd.Seat) {
			return nil, s, ErrInvalidParticipant
		}

		vote := MissionFail
		if cmd.Success {
			vote = MissionSuccess
		}
		t.s.MissionVotes[cmd.Seat] = vote
		t.emit(Event{Type: EvtMissionVoteCast, Seat: cmd.Seat})

		allVoted, success := tallyMission(t.s)
		if allVoted {
			t.resolveMission(success)
		}
		return t.events, t.s, nil

	case CmdSideCheck:
		// Allowed in every phase.
		if !validSeat(s, cmd.Target) {
			return nil, s, ErrInvalidSeat
		}

		t.s.LadyTarget = cmd.Target
		t.emit(Event{Type: EvtSideCheckDone, Seat: cmd.Seat, Target: cmd.Target})
		return t.events, t.s, nil

	case CmdAssassinate:
		// TODO: reveal roles and decide the winner once the end game exists.
		return nil, s, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// transition accumulates the events of a single command against a private
// copy of the state.
type transition struct {
	s      State
	events []Event
}

func (t *transition) emit(e Event) {
	e.Mission = t.s.Mission
	e.Round = t.s.Round
	e.Leader = t.s.Leader
	t.events = append(t.events, e)
}

func (t *transition) maybeResolveApproval() {
	if t.s.Phase != PhaseAwaitingApproval || !hasAllVoted(t.s) {
		return
	}
	t.resolveApproval()
}

func (t *transition) resolveApproval() {
	agreed := agreedSeats(t.s)
	accepted := len(agreed) > len(t.s.Roles)/2

	t.s.AllowProposal = false
	t.emit(Event{Type: EvtApprovalResult, Seats: agreed, Accepted: accepted})

	if accepted {
		t.s.Phase = PhaseAwaitingMission
		for i := range t.s.MissionVotes {
			t.s.MissionVotes[i] = MissionNone
		}
		return
	}

	t.s.Round++
	if t.s.Round == t.s.MaxRounds {
		t.resolveMission(false)
		return
	}

	t.newRound()
}

func (t *transition) resolveMission(success bool) {
	t.emit(Event{Type: EvtMissionResult, Success: success})

	t.s.Proposal = nil
	t.s.AllowProposal = true
	t.s.Mission++
	t.s.Round = 0

	t.newRound()
}

func (t *transition) newRound() {
	t.s.Leader = nextLeader(t.s.Leader, len(t.s.Roles))
	t.s.Proposal = nil
	t.s.Phase = PhaseAwaitingProposal
	for i := range t.s.ApprovalVotes {
		t.s.ApprovalVotes[i] = ApprovalUnknown
	}

	t.emit(Event{Type: EvtRoundStarted})
	t.s.AllowProposal = true
}

func checkProposal(s State, seats []int) error {
	if len(seats) == 0 {
		return ErrInvalidProposal
	}
	seen := make(map[int]bool, len(seats))
	for _, seat := range seats {
		if !validSeat(s, seat) {
			return ErrInvalidSeat
		}
		if seen[seat] {
			return ErrInvalidProposal
		}
		seen[seat] = true
	}
	return nil
}

func hasAllVoted(s State) bool {
	return !slices.Contains(s.ApprovalVotes, ApprovalUnknown)
}

func agreedSeats(s State) []int {
	agreed := []int{}
	for seat, vote := range s.ApprovalVotes {
		if vote == ApprovalAgree {
			agreed = append(agreed, seat)
		}
	}
	return agreed
}

func tallyMission(s State) (allVoted bool, success bool) {
	success = true
	for _, seat := range s.Proposal {
		switch s.MissionVotes[seat] {
		case MissionNone:
			return false, false
		case MissionFail:
			success = false
		}
	}
	return true, success
}

func validSeat(s State, seat int) bool {
	return seat >= 0 && seat < len(s.Roles)
}

func (s State) clone() State {
	c := s
	c.Roles = slices.Clone(s.Roles)
	c.Proposal = slices.Clone(s.Proposal)
	c.ApprovalVotes = slices.Clone(s.ApprovalVotes)
	c.MissionVotes = slices.Clone(s.MissionVotes)
	return c
}
