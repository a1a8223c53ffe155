package host

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Replier delivers client output back to the helper.
type Replier interface {
	ClientOutput(text string) error
}

// SimulatedClient is a Handler standing in for a connected player. It prints
// what the helper shows the player, answers "say" client commands the way a
// client would after expanding $cvar references, and applies "name value"
// client commands to its cvars.
type SimulatedClient struct {
	mu sync.Mutex

	out     io.Writer
	replier Replier
	cvars   map[string]string
	answers []answer
	pending *string

	loggedIn bool
	auth     string
	inputs   int
}

// NewSimulatedClient creates a client writing its view to out and starting
// with the given cvars. A nil map starts with none set.
func NewSimulatedClient(out io.Writer, cvars map[string]string) *SimulatedClient {
	c := &SimulatedClient{
		out:   out,
		cvars: make(map[string]string, len(cvars)),
	}
	for k, v := range cvars {
		c.cvars[k] = v
	}
	return c
}

// Bind sets where replies go. It must be called before the host serves.
func (c *SimulatedClient) Bind(r Replier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replier = r
}

type answer struct {
	prompt string
	reply  string
}

// Answer queues a reply to the next printed line containing prompt. The
// reply is sent on the INPUT request that follows the prompt. Answers are
// matched in the order they were queued.
func (c *SimulatedClient) Answer(prompt, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = append(c.answers, answer{prompt: prompt, reply: reply})
}

func (c *SimulatedClient) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(c.out, format+"\n", args...)
	return err
}

func (c *SimulatedClient) reply(text string) error {
	c.mu.Lock()
	r := c.replier
	c.mu.Unlock()

	if r == nil {
		return fmt.Errorf("simulated client is not bound to a host")
	}
	return r.ClientOutput(text)
}

// Print shows msg on the console and arms the next queued answer when msg
// is its prompt.
func (c *SimulatedClient) Print(msg string) error {
	c.mu.Lock()
	if len(c.answers) > 0 && strings.Contains(msg, c.answers[0].prompt) {
		reply := c.answers[0].reply
		c.answers = c.answers[1:]
		c.pending = &reply
	}
	c.mu.Unlock()
	return c.printf("%s", msg)
}

func (c *SimulatedClient) CenterPrint(msg string) error { return c.printf("[center] %s", msg) }
func (c *SimulatedClient) Broadcast(msg string) error   { return c.printf("[all] %s", msg) }
func (c *SimulatedClient) UserInfo() error              { return c.printf("[userinfo requested]") }

func (c *SimulatedClient) ServerInfo(info string) error {
	return c.printf("[serverinfo] %s", info)
}

// ServerCommand shows server chat; other server commands are only logged.
func (c *SimulatedClient) ServerCommand(cmd string) error {
	if text, ok := strings.CutPrefix(cmd, "say "); ok {
		return c.printf("console: %s", text)
	}
	return c.printf("[server command] %s", cmd)
}

// ClientCommand runs cmd as if typed in the client's console.
func (c *SimulatedClient) ClientCommand(cmd string) error {
	if text, ok := strings.CutPrefix(cmd, "say "); ok {
		expanded := c.expand(text)
		if err := c.printf("you: %s", expanded); err != nil {
			return err
		}
		return c.reply(expanded)
	}

	name, value, ok := strings.Cut(cmd, " ")
	if !ok {
		return c.printf("[client command] %s", cmd)
	}
	c.SetCvar(name, value)
	return nil
}

// Input sends the armed answer, if any. Without one the next line typed by
// the player is expected to arrive through the host.
func (c *SimulatedClient) Input() error {
	c.mu.Lock()
	c.inputs++
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending == nil {
		return nil
	}
	return c.reply(*pending)
}

func (c *SimulatedClient) Login(string) error {
	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	return c.printf("[admitted]")
}

func (c *SimulatedClient) SetAuth(auth string) error {
	c.mu.Lock()
	c.auth = auth
	c.mu.Unlock()
	return nil
}

// expand replaces each $name with the cvar's value. Unset cvars expand to
// the empty string.
func (c *SimulatedClient) expand(text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for {
		i := strings.IndexByte(text, '$')
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		text = text[i+1:]

		end := 0
		for end < len(text) && isCvarByte(text[end]) {
			end++
		}
		if end == 0 {
			b.WriteByte('$')
			continue
		}
		b.WriteString(c.cvars[text[:end]])
		text = text[end:]
	}
}

func isCvarByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// SetCvar sets a client variable.
func (c *SimulatedClient) SetCvar(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cvars[name] = value
}

// Cvar returns a client variable.
func (c *SimulatedClient) Cvar(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cvars[name]
}

// LoggedIn reports whether the helper admitted the client.
func (c *SimulatedClient) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Auth returns the identity set by SAUTH.
func (c *SimulatedClient) Auth() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth
}

// Inputs returns how many INPUT requests arrived.
func (c *SimulatedClient) Inputs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs
}
