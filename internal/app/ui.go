package app

import (
	"context"
	"strings"

	"fieldline/internal/gate"
	"fieldline/internal/poll"
	"fieldline/internal/session"
)

type Tab string

const (
	TabHome      Tab = "home"
	TabIncidents Tab = "incidents"
	TabReports   Tab = "reports"
	TabPersons   Tab = "persons"
	TabTeam      Tab = "team"
	TabChat      Tab = "chat"
	TabVacations Tab = "vacations"
	TabProfile   Tab = "profile"
)

// Poll channel names.
const (
	ChannelHome        = "home"
	ChannelHeartbeat   = "heartbeat"
	ChannelRoster      = "roster"
	ChannelPrivateChat = "chat:private"
	ChannelBroadcast   = "chat:channel"
)

// UIState is what the screens currently show. At most one conversation is
// open: either a private chat or a broadcast channel.
type UIState struct {
	Tab      Tab
	ChatPeer string
	Channel  string
	Modal    string
}

func (a *App) UI() UIState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ui
}

func (a *App) update(fn func(*UIState)) {
	a.mu.Lock()
	fn(&a.ui)
	a.mu.Unlock()
}

// SwitchTab changes the visible tab and starts or stops the channels that
// depend on it.
func (a *App) SwitchTab(tab Tab) {
	a.update(func(ui *UIState) { ui.Tab = tab })
	a.SyncChannels()
}

// OpenChat shows the private conversation with peerID. A conversation with a
// different peer restarts the chat channel so it never fetches for the old
// peer again.
func (a *App) OpenChat(peerID string) {
	var changed bool
	a.update(func(ui *UIState) {
		changed = ui.ChatPeer != peerID
		ui.Tab, ui.ChatPeer, ui.Channel = TabChat, peerID, ""
	})
	if changed {
		a.Poll.Stop(ChannelPrivateChat)
	}
	a.SyncChannels()
}

// OpenChannel shows a broadcast channel; an empty name opens the configured
// default channel.
func (a *App) OpenChannel(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = a.Config.Chat.DefaultChannel
	}
	var changed bool
	a.update(func(ui *UIState) {
		changed = ui.Channel != name
		ui.Tab, ui.ChatPeer, ui.Channel = TabChat, "", name
	})
	if changed {
		a.Poll.Stop(ChannelBroadcast)
	}
	a.SyncChannels()
}

func (a *App) CloseChat() {
	a.update(func(ui *UIState) { ui.ChatPeer, ui.Channel = "", "" })
	a.SyncChannels()
}

// ShowModal swaps the visible modal through the gate: the current modal is
// closed, reload runs after the settle delay, then name is shown. It returns
// false when another modal transition is still running.
func (a *App) ShowModal(ctx context.Context, name string, reload func(ctx context.Context) error) (bool, error) {
	return a.Gate.Transition(ctx, a.modalStep(name, reload))
}

// ScheduleModal is ShowModal for rapid repeated requests: only the last one
// scheduled within the settle delay runs.
func (a *App) ScheduleModal(name string, reload func(ctx context.Context) error) <-chan error {
	return a.Gate.Schedule(a.modalStep(name, reload))
}

func (a *App) CloseModal() {
	a.update(func(ui *UIState) { ui.Modal = "" })
}

func (a *App) modalStep(name string, reload func(ctx context.Context) error) gate.Step {
	return gate.Step{
		Close: func() error {
			a.CloseModal()
			return nil
		},
		Reload: reload,
		Open: func() error {
			a.update(func(ui *UIState) { ui.Modal = name })
			return nil
		},
	}
}

// SyncChannels starts every standard channel whose condition holds and stops
// the others.
func (a *App) SyncChannels() {
	for _, ch := range a.channels() {
		if ch.ActiveWhen() {
			a.Poll.Start(ch)
		} else {
			a.Poll.Stop(ch.Name)
		}
	}
}

func (a *App) channels() []poll.Channel {
	p := a.Config.Polling
	loggedIn := func() bool { return a.Session.State() == session.Authenticated }
	return []poll.Channel{
		{
			Name:       ChannelHome,
			Interval:   p.Home,
			ActiveWhen: func() bool { return loggedIn() && a.UI().Tab == TabHome },
			Fetch:      a.Engine.RefreshHome,
		},
		{
			Name:       ChannelHeartbeat,
			Interval:   p.Heartbeat,
			ActiveWhen: loggedIn,
			Fetch:      a.Engine.Heartbeat,
		},
		{
			Name:       ChannelRoster,
			Interval:   p.Roster,
			ActiveWhen: func() bool { return loggedIn() && a.UI().Tab == TabTeam },
			Fetch:      a.Engine.RefreshRoster,
		},
		{
			Name:       ChannelPrivateChat,
			Interval:   p.PrivateChat,
			ActiveWhen: func() bool { return loggedIn() && a.UI().ChatPeer != "" },
			Fetch: func(ctx context.Context) error {
				peer := a.UI().ChatPeer
				if peer == "" {
					return nil
				}
				return a.Engine.RefreshPrivateChat(ctx, peer)
			},
		},
		{
			Name:       ChannelBroadcast,
			Interval:   p.ChannelChat,
			ActiveWhen: func() bool { return loggedIn() && a.UI().Channel != "" },
			Fetch: func(ctx context.Context) error {
				name := a.UI().Channel
				if name == "" {
					return nil
				}
				return a.Engine.RefreshChannel(ctx, name)
			},
		},
	}
}
