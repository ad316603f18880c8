package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"messenger/domain"
	"messenger/errors"
	"messenger/repositories"
	"messenger/runtime"
	"messenger/services"
	"messenger/sink"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

// CLI turns input lines into calls on the signed in session.
// Lines starting with "/" are commands, anything else is sent to the open conversation.
type CLI struct {
	app      *runtime.App
	auth     services.IAuthService
	groups   *services.GroupService
	settings *services.NotificationSettingsService
	profiles *services.ProfileService
	users    repositories.IUserRepository
	term     *sink.Terminal
	commands map[string]command
}

var errQuit = fmt.Errorf("quit")

func newCLI(app *runtime.App, auth services.IAuthService, groups *services.GroupService,
	settings *services.NotificationSettingsService, profiles *services.ProfileService,
	users repositories.IUserRepository, term *sink.Terminal) *CLI {
	c := &CLI{app: app, auth: auth, groups: groups, settings: settings, profiles: profiles, users: users, term: term}
	c.commands = c.table()
	return c
}

func (c *CLI) Run(ctx context.Context, in io.Reader) error {
	c.term.Println("Type /help for the list of commands.")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			err := c.Execute(ctx, line)
			if stderrors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				c.term.Errorf("%v", err)
			}
		}
	}
}

func (c *CLI) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.send(ctx, line)
	}
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return fmt.Errorf("empty command, try /help")
	}
	cmd, ok := c.commands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command /%s", fields[0])
	}
	return cmd.run(ctx, fields[1:])
}

func (c *CLI) table() map[string]command {
	return map[string]command{
		"help":     {usage: "/help", run: c.help},
		"register": {usage: "/register <email> <password>", run: c.register},
		"login":    {usage: "/login <email> <password>", run: c.login},
		"logout":   {usage: "/logout", run: func(context.Context, []string) error { c.auth.SignOut(); return nil }},
		"username": {usage: "/username <name>", run: c.username},
		"users":    {usage: "/users [term]", run: c.listUsers},
		"dm":       {usage: "/dm <username>", run: c.openDirect},
		"group":    {usage: "/group create|open|add|remove|leave|promote|demote|rename|delete ...", run: c.group},
		"send":     {usage: "/send <text>", run: func(ctx context.Context, args []string) error { return c.send(ctx, strings.Join(args, " ")) }},
		"close":    {usage: "/close", run: c.close},
		"chats":    {usage: "/chats", run: c.chats},
		"mute":     {usage: "/mute 1h|8h|1d|1w|forever", run: c.mute},
		"unmute":   {usage: "/unmute", run: c.unmute},
		"device":   {usage: "/device <token>", run: c.device},
		"quit":     {usage: "/quit", run: func(context.Context, []string) error { return errQuit }},
	}
}

func (c *CLI) help(context.Context, []string) error {
	names := lo.Keys(c.commands)
	sort.Strings(names)
	for _, name := range names {
		c.term.Println("  " + c.commands[name].usage)
	}
	return nil
}

func (c *CLI) session() (*runtime.Session, error) {
	session, ok := c.app.Session()
	if !ok {
		return nil, errors.ErrNotAuthenticated
	}
	return session, nil
}

func expect(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (c *CLI) register(ctx context.Context, args []string) error {
	if err := expect(args, 2, c.commands["register"].usage); err != nil {
		return err
	}
	_, err := c.auth.Register(ctx, args[0], args[1])
	return err
}

func (c *CLI) login(ctx context.Context, args []string) error {
	if err := expect(args, 2, c.commands["login"].usage); err != nil {
		return err
	}
	_, err := c.auth.Authenticate(ctx, args[0], args[1])
	return err
}

func (c *CLI) username(ctx context.Context, args []string) error {
	if err := expect(args, 1, c.commands["username"].usage); err != nil {
		return err
	}
	session, err := c.session()
	if err != nil {
		return err
	}
	user, err := session.ClaimUsername(ctx, args[0])
	if err != nil {
		return err
	}
	c.term.Println("You are @" + user.Username)
	return nil
}

func (c *CLI) listUsers(ctx context.Context, args []string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	var users []domain.User
	if len(args) == 0 {
		users, err = c.profiles.ListUsers(ctx, session.UserID())
	} else {
		users, err = c.profiles.Search(ctx, strings.Join(args, " "), session.UserID(), 0)
	}
	if err != nil {
		return err
	}
	c.term.Table([]string{"Username", "Email"}, lo.Map(users, func(u domain.User, _ int) []string {
		return []string{"@" + u.Username, u.Email}
	}))
	return nil
}

// resolve finds a user by username.
func (c *CLI) resolve(ctx context.Context, username string) (domain.User, error) {
	user, found, err := c.users.FindByUsername(ctx, strings.ToLower(strings.TrimPrefix(username, "@")))
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, fmt.Errorf("%w: @%s", errors.ErrNotFound, username)
	}
	return user, nil
}

func (c *CLI) openDirect(ctx context.Context, args []string) error {
	if err := expect(args, 1, c.commands["dm"].usage); err != nil {
		return err
	}
	session, err := c.session()
	if err != nil {
		return err
	}
	peer, err := c.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	return session.OpenDirect(ctx, peer.ID)
}

func (c *CLI) group(ctx context.Context, args []string) error {
	usage := c.commands["group"].usage
	if err := expect(args, 2, usage); err != nil {
		return err
	}
	session, err := c.session()
	if err != nil {
		return err
	}
	me := session.UserID()
	action, groupID, rest := args[0], args[1], args[2:]

	withUser := func(fn func(userID string) error) error {
		if err := expect(rest, 1, usage); err != nil {
			return err
		}
		user, err := c.resolve(ctx, rest[0])
		if err != nil {
			return err
		}
		return fn(user.ID)
	}

	switch action {
	case "create":
		group, err := c.groups.CreateGroup(ctx, me, strings.Join(args[1:], " "), "")
		if err != nil {
			return err
		}
		c.term.Println(fmt.Sprintf("Group %q created with id %s", group.Name, group.ID))
		return session.OpenGroup(ctx, group.ID)
	case "open":
		return session.OpenGroup(ctx, groupID)
	case "add":
		return withUser(func(userID string) error { return c.groups.AddMember(ctx, me, groupID, userID) })
	case "remove":
		return withUser(func(userID string) error { return c.groups.RemoveMember(ctx, me, groupID, userID) })
	case "promote":
		return withUser(func(userID string) error { return c.groups.PromoteAdmin(ctx, me, groupID, userID) })
	case "demote":
		return withUser(func(userID string) error { return c.groups.DemoteAdmin(ctx, me, groupID, userID) })
	case "leave":
		if active, ok := session.Active(); ok && active == domain.GroupRef(groupID) {
			session.Close()
		}
		return c.groups.Leave(ctx, me, groupID)
	case "rename":
		if err := expect(rest, 1, usage); err != nil {
			return err
		}
		return c.groups.UpdateSettings(ctx, me, groupID, strings.Join(rest, " "), "")
	case "delete":
		if active, ok := session.Active(); ok && active == domain.GroupRef(groupID) {
			session.Close()
		}
		return c.groups.DeleteGroup(ctx, me, groupID)
	default:
		return fmt.Errorf("usage: %s", usage)
	}
}

func (c *CLI) send(ctx context.Context, text string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	_, err = session.Send(ctx, text)
	return err
}

func (c *CLI) close(context.Context, []string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	session.Close()
	return nil
}

func (c *CLI) chats(ctx context.Context, _ []string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	directs, err := c.profiles.ListConversations(ctx, session.UserID(), session.Profiles())
	if err != nil {
		return err
	}
	groups, err := c.profiles.ListGroups(ctx, session.UserID())
	if err != nil {
		return err
	}
	entries := services.MergeEntries(directs, groups)
	c.term.Table([]string{"Chat", "Id", "Last message", "Unread"}, lo.Map(entries, func(e services.ChatListEntry, _ int) []string {
		unread := ""
		if e.Unread > 0 {
			unread = strconv.Itoa(e.Unread)
		}
		return []string{e.Title, string(e.Ref.ID), e.LastMessage, unread}
	}))
	return nil
}

func (c *CLI) mute(ctx context.Context, args []string) error {
	if err := expect(args, 1, c.commands["mute"].usage); err != nil {
		return err
	}
	session, err := c.session()
	if err != nil {
		return err
	}
	active, ok := session.Active()
	if !ok {
		return errors.ErrNoOpenConversation
	}
	duration, err := domain.ParseMuteDuration(args[0])
	if err != nil {
		return err
	}
	until, err := c.settings.Mute(ctx, session.UserID(), string(active.ID), duration)
	if err != nil {
		return err
	}
	if until.Equal(domain.MuteForever) {
		c.term.Println("Muted until you unmute")
		return nil
	}
	c.term.Println("Muted until " + until.Local().Format("Mon 15:04"))
	return nil
}

func (c *CLI) unmute(ctx context.Context, _ []string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	active, ok := session.Active()
	if !ok {
		return errors.ErrNoOpenConversation
	}
	return c.settings.Unmute(ctx, session.UserID(), string(active.ID))
}

func (c *CLI) device(ctx context.Context, args []string) error {
	if err := expect(args, 1, c.commands["device"].usage); err != nil {
		return err
	}
	session, err := c.session()
	if err != nil {
		return err
	}
	return c.settings.RegisterDeviceToken(ctx, session.UserID(), args[0])
}
