package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nexushub/portal/internal/protocol"
	"github.com/nexushub/portal/internal/session"
)

func newChatCmd() *cobra.Command {
	var addr, sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the orchestrator through a running portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(addr, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8090/ws", "portal WebSocket address")
	cmd.Flags().StringVar(&sessionID, "session", "", "portal session id (value of the "+session.CookieName+" cookie)")
	return cmd
}

// chatClient is a terminal client of the portal's chat socket.
type chatClient struct {
	conn      *websocket.Conn
	out       io.Writer
	sessionID string

	writeMu sync.Mutex
	outMu   sync.Mutex
	done    chan struct{}
}

// dialChat connects to the portal, presenting sessionID as the session cookie when set.
func dialChat(addr, sessionID string, out io.Writer) (*chatClient, error) {
	header := http.Header{}
	if sessionID != "" {
		header.Set("Cookie", session.CookieName+"="+sessionID)
	}
	conn, _, err := websocket.DefaultDialer.Dial(addr, header)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &chatClient{conn: conn, out: out, sessionID: sessionID, done: make(chan struct{})}, nil
}

// Close closes the client connection.
func (c *chatClient) Close() error {
	return c.conn.Close()
}

func (c *chatClient) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *chatClient) sayGoodbye() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *chatClient) println(s string) {
	c.outMu.Lock()
	fmt.Fprintln(c.out, s)
	c.outMu.Unlock()
}

// Hello sends hello and waits for hello_ack, printing the transcript it carries.
func (c *chatClient) Hello() (string, error) {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.NewBase(protocol.TypeHello, ""),
		SessionID:   c.sessionID,
		ClientMeta:  map[string]string{"client": "portal-cli"},
	}
	if err := c.send(msg); err != nil {
		return "", fmt.Errorf("write hello: %w", err)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("read hello_ack: %w", err)
		}
		raw, err := protocol.Peek(data)
		if err != nil {
			return "", fmt.Errorf("unmarshal hello_ack: %w", err)
		}
		switch raw.Type {
		case protocol.TypeHelloAck:
			var ack protocol.HelloAckMessage
			if err := json.Unmarshal(data, &ack); err != nil {
				return "", fmt.Errorf("unmarshal hello_ack: %w", err)
			}
			for _, m := range ack.Messages {
				c.println(renderMessage(m))
			}
			return ack.Principal, nil
		case protocol.TypeError:
			var errMsg protocol.ErrorMessage
			json.Unmarshal(data, &errMsg)
			return "", fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
		}
	}
}

// ReadMessages renders server messages until the connection closes.
func (c *chatClient) ReadMessages() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !strings.Contains(err.Error(), "use of closed network connection") {
				c.println(renderError(err.Error()))
			}
			return
		}
		if line := renderServerMessage(data); line != "" {
			c.println(line)
		}
	}
}

// renderServerMessage turns one protocol message into terminal output.
func renderServerMessage(data []byte) string {
	raw, err := protocol.Peek(data)
	if err != nil {
		return renderError("unreadable message from portal")
	}

	switch raw.Type {
	case protocol.TypeMessage, protocol.TypeMessageUpdate:
		var msg protocol.MessageEvent
		if json.Unmarshal(data, &msg) != nil {
			return ""
		}
		return renderMessage(msg.Message)
	case protocol.TypePlanPreview:
		var msg protocol.PlanPreviewMessage
		if json.Unmarshal(data, &msg) != nil {
			return ""
		}
		return renderPreview(msg.Preview) + "\n" + styleGray.Render("/approve to execute, /reject to discard")
	case protocol.TypeState:
		var msg protocol.StateMessage
		if json.Unmarshal(data, &msg) != nil {
			return ""
		}
		switch msg.State {
		case "planning":
			return styleGray.Render("planning...")
		case "executing":
			return styleGray.Render("executing...")
		}
		return ""
	case protocol.TypeSessionEnded:
		return styleGray.Render("session ended, continuing as " + session.Anonymous)
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if json.Unmarshal(data, &msg) != nil {
			return renderError("unknown error")
		}
		return renderError(msg.Message)
	}
	return ""
}

// inputMessage maps a line typed by the user to the message to send. ok is false
// for blank lines; quit is true for /quit.
func inputMessage(line string) (msg interface{}, ok, quit bool) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return nil, false, false
	case "/quit":
		return nil, false, true
	case "/approve":
		return protocol.NewBase(protocol.TypePlanApprove, ""), true, false
	case "/reject":
		return protocol.NewBase(protocol.TypePlanReject, ""), true, false
	}
	return protocol.ChatMessageRequest{
		BaseMessage: protocol.NewBase(protocol.TypeChatMessage, ""),
		Content:     line,
	}, true, false
}

func runChat(addr, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Connecting to %s...\n", addr)

	client, err := dialChat(addr, sessionID, out)
	if err != nil {
		return err
	}
	defer client.Close()

	principal, err := client.Hello()
	if err != nil {
		return err
	}
	client.println(styleGray.Render("Signed in as " + principal + ". Commands: /approve, /reject, /quit"))

	go client.ReadMessages()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-interrupt:
			client.println("Interrupted")
			return nil
		case <-client.done:
			return nil
		case line, more := <-lines:
			if !more {
				return nil
			}
			msg, ok, quit := inputMessage(line)
			if quit {
				client.println("Bye!")
				client.sayGoodbye()
				return nil
			}
			if !ok {
				continue
			}
			if err := client.send(msg); err != nil {
				client.println(renderError(err.Error()))
			}
		}
	}
}
