package events

import (
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"gopkg.in/yaml.v3"
)

// StepPrinterFunc returns a handler that narrates a run on w: progress turns,
// capability outcomes and errors. Final answers are left to the caller.
func StepPrinterFunc(name string, w io.Writer, withToolDetail bool) func(msg *message.Message) error {
	isFirst := true

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		if isFirst && name != "" {
			isFirst = false
			if _, err := fmt.Fprintf(w, "\n%s:\n", name); err != nil {
				return err
			}
		}

		switch p_ := e.(type) {
		case *EventToolCall:
			if _, err := fmt.Fprintf(w, "%s\n", p_.Progress); err != nil {
				return err
			}
			if withToolDetail {
				v_, err := yaml.Marshal(p_.ToolCall)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(w, "%s", v_); err != nil {
					return err
				}
			}

		case *EventToolCallExecutionResult:
			if !withToolDetail && p_.ToolResult.ErrorKind == "" {
				break
			}
			v_, err := yaml.Marshal(p_.ToolResult)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s", v_); err != nil {
				return err
			}

		case *EventIterationLimit:
			if _, err := fmt.Fprintf(w, "[!] stopped after %d iterations\n", p_.MaxIterations); err != nil {
				return err
			}

		case *EventError:
			if _, err := fmt.Fprintf(w, "[error] %s\n", p_.ErrorString); err != nil {
				return err
			}

		case *EventStart, *EventInference, *EventTurn, *EventFinal, *EventLiveState:
		}

		return nil
	}
}
