package stateful

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Commands collects the commands declared across registered modules for the
// client command menu, first declaration wins. The method label is the
// description, falling back to the method name. Hidden methods are skipped.
func (b *Bot) Commands() []tele.Command {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{})
	var out []tele.Command
	for _, id := range b.order {
		for _, meth := range b.modules[id].methods {
			i, ok := meth.display(CondCommand)
			if !ok {
				continue
			}
			name := strings.TrimPrefix(meth.Conditions[i].Literal, "/")
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			desc := strings.TrimSpace(meth.label)
			if desc == "" {
				desc = meth.Name
			}
			out = append(out, tele.Command{Text: name, Description: desc})
		}
	}
	return out
}
