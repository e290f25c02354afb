package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wiesioai/wiesio/plugin/chat"
	"github.com/wiesioai/wiesio/plugin/segment"
)

const chatHelp = `Type a message to send it. Commands:
  /image <path>   use a local image as the base image, /image alone clears it
  /classes a,b    propose object classes to segment, /classes alone clears them
  /open <id>      open a stored conversation, e.g. /open 7-abcdef
  /new            start a new conversation
  /list           list stored conversations
  /images         list images known to the segmentation service
  /mask on|off    show or hide the mask in saved output
  /save <path>    write the base image with the mask overlay as PNG
  /quit           leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the segmentation service and persist the conversation.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile := loadProfile()
		opacity, err := cmd.Flags().GetFloat64("opacity")
		if err != nil {
			return err
		}

		segmenter := segment.NewClient(instanceProfile.SegmentURL, instanceProfile.SegmentTimeout)
		directory := chat.NewDirectoryClient(instanceProfile.ServerURL, instanceProfile.SegmentTimeout)
		locator := chat.NewHistoryLocator()
		classes, err := cmd.Flags().GetString("classes")
		if err != nil {
			return err
		}
		orchestrator := chat.NewOrchestrator(segmenter, directory,
			chat.WithLocator(locator),
			chat.WithClasses(splitClasses(classes)...),
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		c := &chatConsole{
			orchestrator: orchestrator,
			segmenter:    segmenter,
			directory:    directory,
			opacity:      opacity,
			out:          cmd.OutOrStdout(),
		}
		if id, _ := cmd.Flags().GetString("open"); id != "" {
			c.open(ctx, id)
		}
		return c.run(ctx, cmd.InOrStdin())
	},
}

func init() {
	chatCmd.Flags().Float64("opacity", 0.5, "mask opacity used by /save")
	chatCmd.Flags().String("open", "", "conversation to open on start")
	chatCmd.Flags().String("classes", "", "comma separated object classes proposed with every turn")
}

type chatConsole struct {
	orchestrator *chat.Orchestrator
	segmenter    *segment.Client
	directory    *chat.DirectoryClient
	opacity      float64
	out          io.Writer
}

func (c *chatConsole) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(c.out, "segmentation service: %s\n", c.segmenter.Endpoint())
	fmt.Fprintln(c.out, chatHelp)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			c.send(ctx, line)
			continue
		}

		command, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch command {
		case "/quit", "/exit":
			return nil
		case "/image":
			c.loadImage(arg)
		case "/classes":
			c.orchestrator.SetClasses(splitClasses(arg)...)
			fmt.Fprintf(c.out, "classes: %s\n", strings.Join(c.orchestrator.Classes(), ", "))
		case "/open":
			c.open(ctx, arg)
		case "/new":
			if err := c.orchestrator.Reset(); err != nil {
				c.printError(err)
			}
		case "/list":
			c.list(ctx)
		case "/images":
			c.listImages(ctx)
		case "/mask":
			c.orchestrator.Images().SetMaskVisible(arg != "off")
		case "/save":
			c.save(arg)
		default:
			fmt.Fprintln(c.out, chatHelp)
		}
	}
}

func (c *chatConsole) send(ctx context.Context, message string) {
	c.orchestrator.Session().SetDraft(message)
	result, err := c.orchestrator.SendDraft(ctx)
	if result != nil && result.Reply != "" {
		fmt.Fprintf(c.out, "assistant: %s\n", result.Reply)
	}
	if err != nil {
		c.printError(err)
		return
	}
	if result.MaskErr != nil {
		slog.Warn("mask unavailable", slog.String("error", result.MaskErr.Error()))
	} else if result.MaskKey != "" {
		fmt.Fprintf(c.out, "mask: %s\n", result.MaskKey)
	}
	fmt.Fprintf(c.out, "saved at %s\n", result.Location)
}

func (c *chatConsole) loadImage(path string) {
	if path == "" {
		c.orchestrator.Images().Reset()
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.printError(errors.Wrap(err, "failed to read image"))
		return
	}
	c.orchestrator.SetBaseImage(path, data)
}

func (c *chatConsole) open(ctx context.Context, id string) {
	if err := c.orchestrator.Hydrate(ctx, id); err != nil {
		c.printError(err)
		return
	}
	for _, m := range c.orchestrator.Session().Messages() {
		fmt.Fprintf(c.out, "%s: %s\n", m.Sender, m.Content)
	}
}

func (c *chatConsole) list(ctx context.Context) {
	conversations, err := c.directory.ListConversations(ctx)
	if err != nil {
		c.printError(err)
		return
	}
	for _, conversation := range conversations {
		fmt.Fprintln(c.out, conversation.Identifier)
	}
}

func (c *chatConsole) listImages(ctx context.Context) {
	images, err := c.segmenter.ListImages(ctx)
	if err != nil {
		c.printError(err)
		return
	}
	for _, image := range images {
		fmt.Fprintln(c.out, image)
	}
}

func (c *chatConsole) save(path string) {
	if path == "" {
		path = "wiesio.png"
	}
	data, err := c.orchestrator.Images().Display(c.opacity)
	if err != nil {
		c.printError(err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.printError(errors.Wrap(err, "failed to write image"))
		return
	}
	fmt.Fprintf(c.out, "wrote %s\n", path)
}

func (c *chatConsole) printError(err error) {
	fmt.Fprintf(c.out, "error: %v\n", err)
}

func splitClasses(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
