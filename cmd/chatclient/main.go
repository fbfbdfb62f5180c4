package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/korylprince/redbox-chat/chatbot"
	"github.com/korylprince/redbox-chat/events"
	"github.com/korylprince/redbox-chat/metrics"
	"github.com/korylprince/redbox-chat/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

//Config represents options given in the environment; flags override them
type Config struct {
	Endpoint    string        //websocket url of the chat stream
	APIBase     string        //http url of the session api; default: derived from Endpoint
	Session     string        //session id to continue; optional
	LLM         string        //model name sent with each request
	Markdown    bool          //render finished answers as markdown
	Style       string        //glamour style name
	Width       int           //markdown word wrap
	RedisURL    string        //share stop and response-end broadcasts through redis; optional
	MetricsAddr string        //serve prometheus metrics on this addr; optional
	Timeout     time.Duration //fail an exchange after this long without a frame; 0 disables
	Verbose     bool
}

var config = &Config{
	Endpoint: "ws://localhost:8080/api/1.0/ws/chat/",
	Width:    80,
}

func main() {
	if err := envconfig.Process("REDBOX_CHAT", config); err != nil {
		log.Fatalln("Error reading configuration from environment:", err)
	}

	cmd := &cobra.Command{
		Use:   "chatclient",
		Short: "Chat with a redbox server from the terminal",
		Long: `chatclient sends each line read from stdin as a chat message and streams the answer.

Commands:
  /history        list conversations and finished exchanges
  /title <name>   rename the current conversation
  /files a,b      select documents for later messages; "/files" clears them
  /quit           exit

Ctrl-C stops answers that are streaming.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&config.Endpoint, "endpoint", config.Endpoint, "Chat websocket URL")
	flags.StringVar(&config.APIBase, "api", config.APIBase, "Session API base URL (default derived from --endpoint)")
	flags.StringVar(&config.Session, "session", config.Session, "Session ID to continue")
	flags.StringVar(&config.LLM, "llm", config.LLM, "Model name sent with each request")
	flags.BoolVar(&config.Markdown, "markdown", config.Markdown, "Render finished answers as markdown")
	flags.StringVar(&config.Style, "style", config.Style, "Markdown style (dark, light, notty, ...)")
	flags.IntVar(&config.Width, "width", config.Width, "Markdown word wrap width")
	flags.StringVar(&config.RedisURL, "redis", config.RedisURL, "Redis URL for shared broadcasts")
	flags.StringVar(&config.MetricsAddr, "metrics", config.MetricsAddr, "Address to serve Prometheus metrics on")
	flags.DurationVar(&config.Timeout, "timeout", config.Timeout, "Fail an answer after this long without data")
	flags.BoolVarP(&config.Verbose, "verbose", "v", config.Verbose, "Log exchange transitions to stderr")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// apiBase turns ws://host/api/1.0/ws/chat/ into http://host/api/1.0
func apiBase(endpoint string) string {
	base := strings.Replace(endpoint, "ws://", "http://", 1)
	base = strings.Replace(base, "wss://", "https://", 1)
	if i := strings.Index(base, "/ws/"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSuffix(base, "/")
}

func newBus(ctx context.Context) (*events.Bus, error) {
	opts := events.Options{Logger: log.New(os.Stderr, "bus: ", log.LstdFlags)}
	if config.RedisURL != "" {
		ropts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("could not parse redis url: %w", err)
		}
		client := redis.NewClient(ropts)
		if err = client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("could not connect to redis: %w", err)
		}
		opts.Client = client
	}
	return events.NewBus(opts), nil
}

// watchPageTitle announces the title of a new conversation. A continued
// session already has one, so it returns nil without watching.
func watchPageTitle(ctx context.Context, bus chatbot.Subscriber, session string, onSet func(title string)) *chatbot.PageTitle {
	if session != "" {
		return nil
	}
	p := chatbot.NewPageTitle(onSet)
	p.Watch(ctx, bus)
	return p
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if config.APIBase == "" {
		config.APIBase = apiBase(config.Endpoint)
	}

	r, err := render.NewRenderer(out, render.Options{Markdown: config.Markdown, Style: config.Style, Width: config.Width})
	if err != nil {
		return err
	}

	bus, err := newBus(ctx)
	if err != nil {
		return err
	}
	defer bus.Close()

	if config.MetricsAddr != "" {
		go func() {
			log.Println("Serving metrics on:", config.MetricsAddr)
			log.Println(http.ListenAndServe(config.MetricsAddr, promhttp.Handler()))
		}()
	}

	logger := log.New(io.Discard, "", 0)
	if config.Verbose {
		logger = log.New(os.Stderr, "chat: ", log.LstdFlags)
	}

	store := chatbot.NewLRUStore(1 << 20)
	chat := chatbot.NewChat(config.Endpoint, chatbot.NewSession(config.Session), bus,
		chatbot.WithLLM(config.LLM),
		chatbot.WithSink(r.Sink),
		chatbot.WithAnalytics(metrics.Analytics{}),
		chatbot.WithLogger(logger),
		chatbot.WithExchangeTimeout(config.Timeout),
		chatbot.WithStore(store),
	)
	titles := chatbot.NewTitleClient(config.APIBase, nil)

	history := chatbot.NewHistory()
	history.Watch(ctx, bus)
	watchPageTitle(ctx, bus, config.Session, func(title string) {
		r.Note("Conversation: " + title)
	})

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	c := &client{
		chat:       chat,
		store:      store,
		history:    history,
		titles:     titles,
		r:          r,
		out:        out,
		interrupts: interrupts,
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}
		if !c.handle(ctx, strings.TrimSpace(scanner.Text())) {
			break
		}
	}

	chat.Wait()
	return scanner.Err()
}

type client struct {
	chat       *chatbot.Chat
	store      chatbot.ExchangeStore
	history    *chatbot.History
	titles     *chatbot.TitleClient
	r          *render.Renderer
	out        io.Writer
	interrupts chan os.Signal
}

// handle runs one input line and reports whether to keep reading
func (c *client) handle(ctx context.Context, line string) bool {
	switch {
	case line == "":
		return true
	case line == "/quit" || line == "exit" || line == "quit":
		return false
	case line == "/history":
		c.printHistory()
		return true
	case strings.HasPrefix(line, "/title"):
		c.rename(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/title")))
		return true
	case strings.HasPrefix(line, "/files"):
		c.selectFiles(strings.TrimSpace(strings.TrimPrefix(line, "/files")))
		return true
	}

	c.ask(ctx, line)
	return true
}

func (c *client) ask(ctx context.Context, message string) {
	// an interrupt while idle must not stop the next answer
	select {
	case <-c.interrupts:
	default:
	}

	start := time.Now()
	e, err := c.chat.Submit(ctx, message)
	if errors.Is(err, chatbot.ErrEmptyMessage) {
		return
	}
	if err != nil {
		c.r.Banner(err.Error())
		return
	}

	fmt.Fprint(c.out, "Assistant: ")
	for {
		select {
		case <-e.Done():
			metrics.ObserveExchange(e.Status().String(), time.Since(start))
			return
		case <-c.interrupts:
			if err := c.chat.StopAll(ctx); err != nil {
				c.r.Banner("Could not stop: " + err.Error())
			}
		case <-ctx.Done():
			e.Cancel()
			<-e.Done()
			return
		}
	}
}

func (c *client) printHistory() {
	items := c.history.Items()
	if len(items) == 0 {
		c.r.Note("No conversations yet")
	}
	for _, it := range items {
		title := it.Title
		if title == "" {
			title = "(untitled)"
		}
		c.r.Note(fmt.Sprintf("%s  %s  %s", it.Updated.Format(time.Kitchen), it.SessionID, title))
	}

	records, err := c.store.List()
	if err != nil {
		c.r.Banner("Could not list exchanges: " + err.Error())
		return
	}
	for _, rec := range records {
		c.r.Note(fmt.Sprintf("  [%s] %s", rec.Status, rec.Message))
	}
}

func (c *client) rename(ctx context.Context, title string) {
	id := c.chat.Session().ID()
	if id == nil {
		c.r.Banner("No conversation to rename yet")
		return
	}
	if err := c.titles.Rename(ctx, *id, title); err != nil {
		c.r.Banner(err.Error())
		return
	}
	c.history.Rename(*id, title)
	c.r.Note("Renamed to: " + title)
}

func splitIDs(arg string) []string {
	var ids []string
	for _, id := range strings.Split(arg, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *client) selectFiles(arg string) {
	ids := splitIDs(arg)
	c.chat.SelectFiles(ids)
	if len(ids) == 0 {
		c.r.Note("Cleared selected documents")
		return
	}
	c.r.Note("Selected: " + strings.Join(ids, ", "))
}
