package term

import (
	"fmt"
	"sync"
)

// Script is a non-interactive UI implementation with pre-seeded answers. It
// records every interaction, which makes it suitable both for driving the
// orchestrators from automation and for asserting on conversations in tests.
type Script struct {
	mu sync.Mutex

	// Answers for the next prompts, consumed in order. When a queue is
	// exhausted the zero value is returned with ErrNoAnswer.
	SelectAnswers  []string
	ChooseAnswers  []string
	ConfirmAnswers []bool
	InputAnswers   []string

	// Recorded interactions.
	Selections    []string
	Choices       []string
	Confirmations []string
	Inputs        []string
	Lines         []string
	Notifications []Notification
	Steps         []string
}

// Notification is one recorded Notify call.
type Notification struct {
	Level   Level
	Message string
}

// ErrNoAnswer reports a prompt with no scripted answer remaining.
var ErrNoAnswer = fmt.Errorf("no scripted answer available")

func (s *Script) Select(title string, options []string, preselect string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Selections = append(s.Selections, title)
	if len(s.SelectAnswers) == 0 {
		return "", ErrNoAnswer
	}
	answer := s.SelectAnswers[0]
	s.SelectAnswers = s.SelectAnswers[1:]
	return answer, nil
}

func (s *Script) Choose(title string, options []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Choices = append(s.Choices, title)
	if len(s.ChooseAnswers) == 0 {
		return "", ErrNoAnswer
	}
	answer := s.ChooseAnswers[0]
	s.ChooseAnswers = s.ChooseAnswers[1:]
	return answer, nil
}

func (s *Script) Confirm(title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Confirmations = append(s.Confirmations, title)
	if len(s.ConfirmAnswers) == 0 {
		return false, ErrNoAnswer
	}
	answer := s.ConfirmAnswers[0]
	s.ConfirmAnswers = s.ConfirmAnswers[1:]
	return answer, nil
}

func (s *Script) Input(title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inputs = append(s.Inputs, title)
	if len(s.InputAnswers) == 0 {
		return "", ErrNoAnswer
	}
	answer := s.InputAnswers[0]
	s.InputAnswers = s.InputAnswers[1:]
	return answer, nil
}

func (s *Script) Progress(title string) Progress {
	return &scriptProgress{script: s}
}

func (s *Script) Log(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lines = append(s.Lines, line)
}

func (s *Script) Notify(level Level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notifications = append(s.Notifications, Notification{Level: level, Message: message})
}

// NotificationMessages returns the messages recorded so far.
func (s *Script) NotificationMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Notifications))
	for _, n := range s.Notifications {
		out = append(out, n.Message)
	}
	return out
}

type scriptProgress struct {
	script *Script
}

func (p *scriptProgress) Step(percent int, message string) {
	p.script.mu.Lock()
	defer p.script.mu.Unlock()
	p.script.Steps = append(p.script.Steps, fmt.Sprintf("%d%% %s", percent, message))
}

func (p *scriptProgress) Done() {}

var (
	_ UI = (*Console)(nil)
	_ UI = (*Script)(nil)
)
