// Package replay plays scripted server event sequences for prototyping chat clients.
package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/korylprince/redbox-chat/chatbot"
)

// MessagePlaceholder is replaced with the user's message in step data
const MessagePlaceholder = "{{message}}"

// StepTypeRaw sends Data verbatim, e.g. to prototype malformed frames
const StepTypeRaw = "raw"

// Step is one scripted server event
type Step struct {
	Type string `toml:"type"`
	Data string `toml:"data"`

	// source steps
	FileName     string `toml:"file_name"`
	URL          string `toml:"url"`
	TextInAnswer string `toml:"text_in_answer"`

	// Words splits a text step into one frame per word
	Words bool `toml:"words"`
}

// Script is an ordered list of steps, in TOML as [[step]] tables
type Script struct {
	Steps []Step `toml:"step"`
}

// Frame is one message the server will send
type Frame struct {
	Type string
	Body []byte
}

// ErrEmptyScript is returned for scripts without steps
var ErrEmptyScript = errors.New("script has no steps")

// LoadScript reads and validates a TOML script file
func LoadScript(path string) (*Script, error) {
	s := new(Script)
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode script %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in script %s: %v", path, undecoded)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script %s: %w", path, err)
	}
	return s, nil
}

// ParseScript parses and validates a TOML script
func ParseScript(data string) (*Script, error) {
	s := new(Script)
	md, err := toml.Decode(data, s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown script keys: %v", undecoded)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultScript echoes the message back one word at a time
func DefaultScript() *Script {
	return &Script{Steps: []Step{
		{Type: string(chatbot.EventTypeInfo), Data: "Loading"},
		{Type: string(chatbot.EventTypeRoute), Data: "chat"},
		{Type: string(chatbot.EventTypeText), Data: "You said: " + MessagePlaceholder, Words: true},
	}}
}

// Validate checks every step has a known type
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return ErrEmptyScript
	}
	for i, step := range s.Steps {
		switch chatbot.EventType(step.Type) {
		case chatbot.EventTypeText, chatbot.EventTypeSource, chatbot.EventTypeRoute, chatbot.EventTypeHiddenRoute,
			chatbot.EventTypeActivity, chatbot.EventTypeInfo, chatbot.EventTypeError:
		case StepTypeRaw:
		case chatbot.EventTypeSessionID, chatbot.EventTypeEnd:
			return fmt.Errorf("step %d: %s frames are sent by the server", i+1, step.Type)
		default:
			return fmt.Errorf("step %d: unknown type %q", i+1, step.Type)
		}
		if step.Type == string(chatbot.EventTypeSource) && step.FileName == "" {
			return fmt.Errorf("step %d: source requires file_name", i+1)
		}
	}
	return nil
}

// Frames renders the script for message. Playback stops after an error frame.
func (s *Script) Frames(message string) ([]Frame, error) {
	var frames []Frame
	for _, step := range s.Steps {
		data := strings.ReplaceAll(step.Data, MessagePlaceholder, message)

		if step.Type == StepTypeRaw {
			frames = append(frames, Frame{Type: StepTypeRaw, Body: []byte(data)})
			continue
		}

		var events []chatbot.Event
		switch chatbot.EventType(step.Type) {
		case chatbot.EventTypeText:
			if !step.Words {
				events = append(events, chatbot.TextEvent{Text: data})
				break
			}
			for _, word := range strings.SplitAfter(data, " ") {
				if word != "" {
					events = append(events, chatbot.TextEvent{Text: word})
				}
			}
		case chatbot.EventTypeSource:
			events = append(events, chatbot.SourceEvent{Source: chatbot.Source{
				FileName:     step.FileName,
				URL:          step.URL,
				TextInAnswer: step.TextInAnswer,
			}})
		case chatbot.EventTypeRoute:
			events = append(events, chatbot.RouteEvent{Route: data})
		case chatbot.EventTypeHiddenRoute:
			events = append(events, chatbot.HiddenRouteEvent{Route: data})
		case chatbot.EventTypeActivity:
			events = append(events, chatbot.ActivityEvent{Activity: data})
		case chatbot.EventTypeInfo:
			events = append(events, chatbot.InfoEvent{Info: data})
		case chatbot.EventTypeError:
			events = append(events, chatbot.ErrorEvent{Message: data})
		default:
			return nil, fmt.Errorf("unknown step type %q", step.Type)
		}

		for _, ev := range events {
			body, err := chatbot.EncodeEvent(ev)
			if err != nil {
				return nil, err
			}
			frames = append(frames, Frame{Type: string(ev.Type()), Body: body})
		}
		if step.Type == string(chatbot.EventTypeError) {
			break
		}
	}
	return frames, nil
}
