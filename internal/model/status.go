package model

// MessageStatus is the lifecycle state of an inbox message.
type MessageStatus string

const (
	MessageStatusNew        MessageStatus = "new"
	MessageStatusRead       MessageStatus = "read"
	MessageStatusInProgress MessageStatus = "in_progress"
	MessageStatusReplied    MessageStatus = "replied"
	MessageStatusResolved   MessageStatus = "resolved"
	MessageStatusArchived   MessageStatus = "archived"
)

// AllStatuses lists every state in lifecycle order.
var AllStatuses = []MessageStatus{
	MessageStatusNew,
	MessageStatusRead,
	MessageStatusInProgress,
	MessageStatusReplied,
	MessageStatusResolved,
	MessageStatusArchived,
}

func (s MessageStatus) IsValid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusArchived
}

// Trigger identifies what caused a status change.
type Trigger int

const (
	// TriggerOperator is an explicit status change requested from the console.
	TriggerOperator Trigger = iota
	// TriggerOpen is the first read of a new message.
	TriggerOpen
	// TriggerReply is the status change implied by a posted reply.
	TriggerReply
)

func (t Trigger) String() string {
	switch t {
	case TriggerOperator:
		return "operator"
	case TriggerOpen:
		return "open"
	case TriggerReply:
		return "reply"
	default:
		return "unknown"
	}
}

type edge struct {
	from MessageStatus
	to   MessageStatus
}

var (
	byOperator = []Trigger{TriggerOperator}
	byAnyone   = []Trigger{TriggerOperator, TriggerReply}
)

// validTransitions maps each allowed edge to the triggers that may take it.
// Nothing leaves archived.
var validTransitions = map[edge][]Trigger{
	{MessageStatusNew, MessageStatusRead}: {TriggerOpen},

	{MessageStatusRead, MessageStatusInProgress}: byOperator,

	{MessageStatusNew, MessageStatusReplied}:        {TriggerReply},
	{MessageStatusRead, MessageStatusReplied}:       {TriggerReply},
	{MessageStatusInProgress, MessageStatusReplied}: {TriggerReply},

	{MessageStatusNew, MessageStatusResolved}:        byAnyone,
	{MessageStatusRead, MessageStatusResolved}:       byAnyone,
	{MessageStatusInProgress, MessageStatusResolved}: byAnyone,
	{MessageStatusReplied, MessageStatusResolved}:    byAnyone,

	{MessageStatusNew, MessageStatusArchived}:        byOperator,
	{MessageStatusRead, MessageStatusArchived}:       byOperator,
	{MessageStatusInProgress, MessageStatusArchived}: byOperator,
	{MessageStatusReplied, MessageStatusArchived}:    byOperator,
	{MessageStatusResolved, MessageStatusArchived}:   byOperator,
}

// CheckTransition reports whether trigger t may move a message from one status
// to another. Staying in the same status is always allowed.
func CheckTransition(from, to MessageStatus, t Trigger) error {
	if from == to {
		return nil
	}
	for _, allowed := range validTransitions[edge{from, to}] {
		if allowed == t {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// NextStatuses returns the statuses an operator can move a message to.
func NextStatuses(from MessageStatus) []MessageStatus {
	var out []MessageStatus
	for _, to := range AllStatuses {
		if to != from && CheckTransition(from, to, TriggerOperator) == nil {
			out = append(out, to)
		}
	}
	return out
}

// ReplyTarget is the status a message ends in after a reply. Resolved and
// archived messages keep their status.
func ReplyTarget(current MessageStatus, markResolved bool) MessageStatus {
	switch current {
	case MessageStatusResolved, MessageStatusArchived:
		return current
	}
	if markResolved {
		return MessageStatusResolved
	}
	if current == MessageStatusReplied {
		return current
	}
	return MessageStatusReplied
}

// StatusCounts is the number of messages per status.
type StatusCounts map[MessageStatus]int64

// NewStatusCounts returns counts with every status present and zero.
func NewStatusCounts() StatusCounts {
	c := make(StatusCounts, len(AllStatuses))
	for _, s := range AllStatuses {
		c[s] = 0
	}
	return c
}

func (c StatusCounts) Total() int64 {
	var total int64
	for _, v := range c {
		total += v
	}
	return total
}
