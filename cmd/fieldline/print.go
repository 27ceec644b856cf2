package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"fieldline/internal/app"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
)

var (
	openColor     = color.New(color.FgYellow).SprintFunc()
	activeColor   = color.New(color.FgCyan).SprintFunc()
	doneColor     = color.New(color.FgGreen).SprintFunc()
	rejectedColor = color.New(color.FgRed).SprintFunc()
	faintColor    = color.New(color.Faint).SprintFunc()
	highColor     = color.New(color.FgRed, color.Bold).SprintFunc()
)

// statusCell renders a status with its German label in the colour of its
// lifecycle stage.
func statusCell(status string) string {
	label := engine.StatusLabel(status)
	switch status {
	case string(domain.IncidentOpen), string(domain.ReportDraft), string(domain.PersonMissing), string(domain.VacationPending):
		return openColor(label)
	case string(domain.IncidentInProgress), string(domain.PersonWanted):
		return activeColor(label)
	case string(domain.IncidentCompleted), string(domain.PersonResolved), string(domain.VacationApproved):
		return doneColor(label)
	case string(domain.VacationRejected):
		return rejectedColor(label)
	case string(domain.ReportArchived):
		return faintColor(label)
	}
	return label
}

func priorityCell(p domain.Priority) string {
	if p == domain.PriorityHigh {
		return highColor(string(p))
	}
	return string(p)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func agoPtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return ago(*t)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(color.Output)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func printUser(u domain.User) error {
	if viper.GetBool("json") {
		return printJSON(u)
	}
	tw := newTable()
	tw.AppendRows([]table.Row{
		{"Name", u.DisplayName()},
		{"E-Mail", u.Email},
		{"Rolle", u.Role},
		{"Status", dash(u.Status)},
		{"Telefon", dash(u.Phone)},
		{"ID", faintColor(u.ID)},
	})
	tw.Render()
	return nil
}

func printUsers(users []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(users)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Status", "Name", "E-Mail", "Rolle", "Zuletzt aktiv", "ID"})
	for _, u := range users {
		tw.AppendRow(table.Row{dash(u.Status), u.DisplayName(), u.Email, u.Role, agoPtr(u.LastSeen), faintColor(u.ID)})
	}
	tw.Render()
	return nil
}

func printStats(s domain.Stats, p domain.PersonStats) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"stats": s, "person_stats": p})
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Bereich", "Gesamt", "Offen", "In Bearbeitung", "Abgeschlossen"})
	tw.AppendRow(table.Row{"Einsätze", s.TotalIncidents, openColor(s.OpenIncidents), activeColor(s.InProgressIncidents), doneColor(s.CompletedIncidents)})
	tw.AppendRow(table.Row{"Personen", p.Total, openColor(p.Missing), activeColor(p.Wanted), doneColor(p.Resolved)})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Berichte", s.TotalReports, "", "", ""})
	tw.AppendRow(table.Row{"Team", s.TotalUsers, fmt.Sprintf("%d online", s.OnlineUsers), "", ""})
	tw.AppendRow(table.Row{"Urlaubsanträge", s.PendingVacations, "offen", "", ""})
	tw.Render()
	return nil
}

func printIncidents(list []domain.Incident) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Titel", "Status", "Priorität", "Ort", "Zugewiesen", "Gemeldet"})
	for _, inc := range list {
		tw.AppendRow(table.Row{faintColor(inc.ID), inc.Title, statusCell(string(inc.Status)), priorityCell(inc.Priority), dash(inc.Location), dash(inc.AssignedToName), ago(inc.CreatedAt)})
	}
	tw.Render()
	return nil
}

func printIncident(inc domain.Incident) error {
	return printIncidents([]domain.Incident{inc})
}

func printReports(list []domain.Report) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Titel", "Status", "Autor", "Geändert"})
	for _, r := range list {
		tw.AppendRow(table.Row{faintColor(r.ID), r.Title, statusCell(string(r.Status)), dash(r.AuthorName), ago(r.UpdatedAt)})
	}
	tw.Render()
	return nil
}

func printReport(r domain.Report) error {
	return printReports([]domain.Report{r})
}

func printPersons(list []domain.Person) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Status", "Priorität", "Aktenzeichen", "Zuletzt gesehen", "Erfasst"})
	for _, p := range list {
		tw.AppendRow(table.Row{faintColor(p.ID), p.FullName(), statusCell(string(p.Status)), priorityCell(p.Priority), dash(p.CaseNumber), dash(p.LastSeenLocation), ago(p.CreatedAt)})
	}
	tw.Render()
	return nil
}

func printPerson(p domain.Person) error {
	return printPersons([]domain.Person{p})
}

func printVacations(list []domain.VacationRequest) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Antragsteller", "Von", "Bis", "Grund", "Status", "Entscheidung"})
	for _, v := range list {
		tw.AppendRow(table.Row{faintColor(v.ID), dash(v.RequesterName), v.StartDate, v.EndDate, dash(v.Reason), statusCell(string(v.Status)), dash(v.DecisionReason)})
	}
	tw.Render()
	return nil
}

func printVacation(v domain.VacationRequest) error {
	return printVacations([]domain.VacationRequest{v})
}

func printMessages(list []domain.ChatMessage) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(color.Output, faintColor("Keine Nachrichten."))
		return nil
	}
	tbl := uitable.New()
	tbl.Separator = " "
	tbl.Wrap = true
	tbl.MaxColWidth = 80
	for _, m := range list {
		tbl.AddRow(faintColor(ago(m.CreatedAt)), activeColor(dash(m.SenderName)+":"), m.Content)
	}
	_, _ = fmt.Fprintln(color.Output, tbl)
	return nil
}

func printEvents(list []domain.Event) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Zeit", "Typ", "Art", "Objekt", "Akteur", "Daten"})
	for _, e := range list {
		when := e.TS
		if ts, err := time.Parse(time.RFC3339Nano, e.TS); err == nil {
			when = ago(ts)
		}
		tw.AppendRow(table.Row{e.ID, when, e.Type, e.EntityKind, dash(e.EntityID), dash(e.ActorID), e.Payload})
	}
	tw.Render()
	return nil
}

// printChange writes one line per cache notification in watch mode.
func printChange(a *app.App, name string) {
	stamp := faintColor(time.Now().Format("15:04:05"))
	var detail string
	switch name {
	case a.Store.Incidents.Name():
		detail = fmt.Sprintf("%d Einsätze", a.Store.Incidents.Len())
	case a.Store.Reports.Name():
		detail = fmt.Sprintf("%d Berichte", a.Store.Reports.Len())
	case a.Store.Persons.Name():
		detail = fmt.Sprintf("%d Personen", a.Store.Persons.Len())
	case a.Store.Users.Name():
		detail = fmt.Sprintf("%d Teammitglieder", a.Store.Users.Len())
	case a.Store.MyVacations.Name():
		detail = fmt.Sprintf("%d eigene Urlaubsanträge", a.Store.MyVacations.Len())
	case a.Store.AdminVacations.Name():
		detail = fmt.Sprintf("%d offene Urlaubsanträge", len(a.Store.PendingVacations()))
	case a.Store.Stats.Name():
		if s, ok := a.Store.Stats.Get(); ok {
			detail = fmt.Sprintf("%d offen, %d in Bearbeitung, %d online", s.OpenIncidents, s.InProgressIncidents, s.OnlineUsers)
		}
	case a.Store.PersonStats.Name():
		if p, ok := a.Store.PersonStats.Get(); ok {
			detail = fmt.Sprintf("%d vermisst, %d gesucht", p.Missing, p.Wanted)
		}
	default:
		if strings.HasPrefix(name, "private:") || strings.HasPrefix(name, "channel:") {
			msgs := a.Store.Conversation(name).Items()
			detail = fmt.Sprintf("%d Nachrichten", len(msgs))
			if n := len(msgs); n > 0 {
				last := msgs[n-1]
				detail += fmt.Sprintf(", zuletzt %s: %s", dash(last.SenderName), last.Content)
			}
		}
	}
	fmt.Fprintf(color.Output, "%s %s %s\n", stamp, activeColor(name), detail)
}
