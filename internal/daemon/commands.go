package daemon

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const helpText = `Solace commands:
/mood <mood> <1-10> [note] — log a mood check-in
/sleep <hours> [1-5] — log last night's sleep
/journal <text> — write a journal entry
/log <kind> <value> [unit] [note] — track anything (water, caffeine, ...)
/event <YYYY-MM-DDTHH:MM> <title> — add a calendar entry
/exposure set <rung> <description> | /exposure done <rung> | /exposure try <rung>
/pref <key> <value...> — set a conversational preference
/profile <field> <text...> — set a profile field (overview, psych, chronotype, travel)
/mode on <id> [keep] | /mode off <id> | /mode list
/persona <id> | /persona adaptive on|off | /persona show
/key <api-key> — store the model API key
/cost — show spend totals
/upkeep — run a maintenance cycle now
Prefix a message with [brief], [deeper], [plain] or [no-questions] to shape one reply.`

// handleCommand executes a slash command and returns the reply text.
func (d *Daemon) handleCommand(text string) string {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/help":
		return helpText
	case "/mood":
		return d.cmdMood(args)
	case "/sleep":
		return d.cmdSleep(args)
	case "/journal":
		return d.cmdJournal(strings.TrimSpace(strings.TrimPrefix(text, fields[0])))
	case "/log":
		return d.cmdLog(args)
	case "/event":
		return d.cmdEvent(args)
	case "/exposure":
		return d.cmdExposure(args)
	case "/pref":
		return d.cmdPref(args)
	case "/profile":
		return d.cmdProfile(args)
	case "/mode":
		return d.cmdMode(args)
	case "/persona":
		return d.cmdPersona(args)
	case "/key":
		return d.cmdKey(args)
	case "/cost":
		return d.cmdCost()
	case "/upkeep":
		return d.cmdUpkeep()
	default:
		return fmt.Sprintf("Unknown command %s. Try /help.", cmd)
	}
}

func (d *Daemon) cmdMood(args []string) string {
	if len(args) < 2 {
		return "Usage: /mood <mood> <1-10> [note]"
	}
	intensity, err := strconv.Atoi(args[1])
	if err != nil || intensity < 1 || intensity > 10 {
		return "Intensity must be a number from 1 to 10."
	}
	note := strings.Join(args[2:], " ")
	if err := d.store.AddMood(args[0], intensity, note); err != nil {
		slog.Warn("add mood failed", "error", err)
		return "Couldn't save that mood check-in."
	}
	return fmt.Sprintf("Noted: %s (%d/10).", args[0], intensity)
}

func (d *Daemon) cmdSleep(args []string) string {
	if len(args) < 1 {
		return "Usage: /sleep <hours> [quality 1-5]"
	}
	hours, err := strconv.ParseFloat(args[0], 64)
	if err != nil || hours <= 0 || hours > 24 {
		return "Hours must be a number like 7.5."
	}
	quality := 0
	if len(args) > 1 {
		if q, err := strconv.Atoi(args[1]); err == nil && q >= 1 && q <= 5 {
			quality = q
		}
	}
	date := time.Now().Format("2006-01-02")
	if err := d.store.AddSleep(date, hours, quality); err != nil {
		slog.Warn("add sleep failed", "error", err)
		return "Couldn't save that sleep entry."
	}
	return fmt.Sprintf("Logged %.1fh of sleep for %s.", hours, date)
}

func (d *Daemon) cmdJournal(text string) string {
	if text == "" {
		return "Usage: /journal <text>"
	}
	if _, err := d.store.AddJournal(text); err != nil {
		slog.Warn("add journal failed", "error", err)
		return "Couldn't save that journal entry."
	}
	return "Journal entry saved."
}

func (d *Daemon) cmdLog(args []string) string {
	if len(args) < 2 {
		return "Usage: /log <kind> <value> [unit] [note]"
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return "Value must be a number."
	}
	unit, note := "", ""
	if len(args) > 2 {
		unit = args[2]
	}
	if len(args) > 3 {
		note = strings.Join(args[3:], " ")
	}
	if err := d.store.AddLog(args[0], value, unit, note); err != nil {
		slog.Warn("add log failed", "error", err)
		return "Couldn't save that entry."
	}
	return fmt.Sprintf("Tracked %s: %g %s.", args[0], value, unit)
}

func (d *Daemon) cmdEvent(args []string) string {
	if len(args) < 2 {
		return "Usage: /event <YYYY-MM-DDTHH:MM> <title>"
	}
	startsAt, err := time.ParseInLocation("2006-01-02T15:04", args[0], time.Local)
	if err != nil {
		return "Couldn't parse that time. Use YYYY-MM-DDTHH:MM."
	}
	title := strings.Join(args[1:], " ")
	if err := d.store.AddEvent(title, startsAt, ""); err != nil {
		slog.Warn("add event failed", "error", err)
		return "Couldn't save that event."
	}
	return fmt.Sprintf("Added %q on %s.", title, startsAt.Format("Mon Jan 2 15:04"))
}

func (d *Daemon) cmdExposure(args []string) string {
	if len(args) < 2 {
		return "Usage: /exposure set <rung> <description> | done <rung> | try <rung>"
	}
	rung, err := strconv.Atoi(args[1])
	if err != nil {
		return "Rung must be a number."
	}
	switch args[0] {
	case "set":
		if len(args) < 3 {
			return "Usage: /exposure set <rung> <description>"
		}
		if err := d.store.SetExposureStep(rung, strings.Join(args[2:], " ")); err != nil {
			slog.Warn("set exposure failed", "error", err)
			return "Couldn't save that step."
		}
		return fmt.Sprintf("Ladder rung %d set.", rung)
	case "done":
		if err := d.store.MarkExposure(rung, "completed"); err != nil {
			return "Couldn't update that step."
		}
		return fmt.Sprintf("Rung %d marked completed. Well done.", rung)
	case "try":
		if err := d.store.MarkExposure(rung, "attempted"); err != nil {
			return "Couldn't update that step."
		}
		return fmt.Sprintf("Rung %d marked attempted. Attempts count.", rung)
	default:
		return "Usage: /exposure set|done|try <rung> ..."
	}
}

func (d *Daemon) cmdPref(args []string) string {
	if len(args) < 2 {
		return "Usage: /pref <key> <value...>"
	}
	if err := d.store.SetPreference(args[0], strings.Join(args[1:], " ")); err != nil {
		slog.Warn("set preference failed", "error", err)
		return "Couldn't save that preference."
	}
	return fmt.Sprintf("Preference %q saved.", args[0])
}

func (d *Daemon) cmdProfile(args []string) string {
	if len(args) < 2 {
		return "Usage: /profile <field> <text...>"
	}
	if err := d.store.SetProfile(args[0], strings.Join(args[1:], " ")); err != nil {
		slog.Warn("set profile failed", "error", err)
		return "Couldn't save that profile field."
	}
	return fmt.Sprintf("Profile field %q saved.", args[0])
}

func (d *Daemon) cmdMode(args []string) string {
	if len(args) < 1 {
		return "Usage: /mode on <id> [keep] | /mode off <id> | /mode list"
	}
	modes := d.pipe.Modes().Modes()

	switch args[0] {
	case "list":
		active := modes.Active()
		var lines []string
		for _, id := range d.catalog.ModeOrder() {
			m, _ := d.catalog.Mode(id)
			marker := " "
			if active[id] {
				marker = "*"
			}
			lines = append(lines, fmt.Sprintf("%s %s — %s", marker, m.ID, m.Name))
		}
		return "Modes (* = active):\n" + strings.Join(lines, "\n")
	case "on":
		if len(args) < 2 {
			return "Usage: /mode on <id> [keep]"
		}
		id := args[1]
		if _, ok := d.catalog.Mode(id); !ok {
			return fmt.Sprintf("Unknown mode %q. Try /mode list.", id)
		}
		persistent := len(args) > 2 && args[2] == "keep"
		modes.Enable(id, persistent)
		d.saveModes()
		return fmt.Sprintf("Mode %s enabled.", id)
	case "off":
		if len(args) < 2 {
			return "Usage: /mode off <id>"
		}
		modes.Disable(args[1])
		d.saveModes()
		return fmt.Sprintf("Mode %s disabled.", args[1])
	default:
		return "Usage: /mode on <id> [keep] | /mode off <id> | /mode list"
	}
}

func (d *Daemon) cmdPersona(args []string) string {
	s := d.pipe.PersonaSettings()

	if len(args) == 0 || args[0] == "show" {
		mode := "on"
		if !s.Adaptive {
			mode = "off"
		}
		return fmt.Sprintf("Persona: %s (adaptive %s, base %s)", s.Selected, mode, s.Base)
	}

	if args[0] == "adaptive" {
		if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
			return "Usage: /persona adaptive on|off"
		}
		s.Adaptive = args[1] == "on"
		d.pipe.SetPersonaSettings(s)
		d.savePersonaSettings(s)
		return fmt.Sprintf("Adaptive persona selection %s.", args[1])
	}

	if _, ok := d.catalog.Persona(args[0]); !ok {
		return fmt.Sprintf("Unknown persona %q.", args[0])
	}
	s.Selected = args[0]
	d.pipe.SetPersonaSettings(s)
	d.savePersonaSettings(s)
	return fmt.Sprintf("Persona set to %s.", args[0])
}

func (d *Daemon) cmdKey(args []string) string {
	if len(args) != 1 {
		return "Usage: /key <api-key>"
	}
	if err := d.creds.Set(args[0]); err != nil {
		slog.Warn("store credential failed", "error", err)
		return "Couldn't store the key."
	}
	return "API key stored."
}

func (d *Daemon) cmdCost() string {
	tot, err := d.ledger.Totals(time.Now())
	if err != nil {
		slog.Warn("ledger read failed", "error", err)
		return "Couldn't read the ledger."
	}
	return fmt.Sprintf("Spend %s: $%.4f this month ($%.4f lifetime, %d in / %d out tokens all time)",
		tot.Month, tot.MonthUSD, tot.LifeUSD, tot.LifeInTokens, tot.LifeOutTokens)
}

func (d *Daemon) cmdUpkeep() string {
	if d.upkeep == nil {
		return "Upkeep worker is disabled."
	}
	r := d.upkeep.CycleOnce()
	return fmt.Sprintf("Upkeep cycle %d: %d turns pruned, %d topics dropped (%s).",
		r.CycleNumber, r.TurnsPruned, r.TopicsDropped, r.Duration)
}

// saveModes persists the persistent-scope view of active modes.
func (d *Daemon) saveModes() {
	active := d.pipe.Modes().Modes().Active()
	ids := make([]string, 0, len(active))
	for _, id := range d.catalog.ModeOrder() {
		if active[id] {
			ids = append(ids, id)
		}
	}
	if err := d.store.SetProfile("modes", strings.Join(ids, ",")); err != nil {
		slog.Warn("persisting modes failed", "error", err)
	}
}

// restoreModes reloads persisted modes at startup.
func (d *Daemon) restoreModes() {
	v, err := d.store.Profile("modes")
	if err != nil || v == "" {
		return
	}
	for _, id := range strings.Split(v, ",") {
		if _, ok := d.catalog.Mode(id); ok {
			d.pipe.Modes().Modes().Enable(id, true)
		}
	}
}
