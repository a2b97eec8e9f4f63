package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	"scribe/internal/ipc"
	"scribe/pkg/audioconv"
	"scribe/pkg/stt"
)

func send(msg ipc.ControlMessage, timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r, err := ipc.SendCommand(ctx, opts.Socket, msg)
	if err != nil {
		return fmt.Errorf("scribe-daemon not running: %w", err)
	}
	printReply(r)
	if !r.Ok {
		return errors.New(r.Error)
	}
	return nil
}

func printReply(r ipc.Reply) {
	if r.Intent != "" {
		fmt.Println("intent: ", r.Intent)
	}
	for _, p := range r.Paths {
		fmt.Println("drew:   ", p)
	}
	if r.Skipped != "" {
		fmt.Printf("skipped: %q\n", r.Skipped)
	}
	if r.Full {
		fmt.Println("whiteboard is full")
	}
	if st := r.Status; st != nil {
		fmt.Println("session:", st.Session)
		fmt.Printf("cursor:  row %d, col %d\n", st.Row, st.Col)
		fmt.Println("full:   ", st.Full)
		fmt.Println("armed:  ", st.Attached)
		if st.Busy != "" {
			fmt.Println("busy:   ", st.Busy)
		}
		if st.Quit {
			fmt.Println("closed: ", st.Reason)
		}
	}
	if r.Error != "" {
		fmt.Println("error:  ", r.Error)
	}
}

type TriggerCommand struct{}

func (c *TriggerCommand) Execute(args []string) error {
	return send(ipc.ControlMessage{Cmd: ipc.CmdTrigger}, 0)
}

type SayCommand struct {
	Args struct {
		Text []string `positional-arg-name:"text" required:"1"`
	} `positional-args:"yes"`
}

func (c *SayCommand) Execute(args []string) error {
	return send(ipc.ControlMessage{Cmd: ipc.CmdSay, Text: strings.Join(c.Args.Text, " ")}, 0)
}

type WriteCommand struct {
	Args struct {
		Text []string `positional-arg-name:"text" required:"1"`
	} `positional-args:"yes"`
}

func (c *WriteCommand) Execute(args []string) error {
	return send(ipc.ControlMessage{Cmd: ipc.CmdWrite, Text: strings.Join(c.Args.Text, " ")}, 0)
}

// SimpleCommand sends a command without arguments. Its name is the
// subcommand name.
type SimpleCommand struct {
	name string
}

func (c *SimpleCommand) Execute(args []string) error {
	timeout := time.Duration(0)
	switch c.name {
	case ipc.CmdStatus, ipc.CmdStop:
		timeout = 5 * time.Second
	}
	return send(ipc.ControlMessage{Cmd: c.name}, timeout)
}

type ListenCommand struct {
	File     string `short:"f" long:"file" required:"true" description:"Audio file (wav, mp3, ogg)"`
	Model    string `short:"m" long:"model" default:"third_party/whisper.cpp/models/ggml-base.en.bin" description:"Whisper model"`
	Language string `long:"lang" default:"en" description:"Spoken language"`
	DryRun   bool   `short:"n" long:"dry-run" description:"Only print the transcript"`
}

func (c *ListenCommand) Execute(args []string) error {
	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{Level: log.LevelWarn})))
	ctx := context.Background()

	pcm, err := audioconv.DecodeFile(ctx, c.File, audioconv.Options{MaxDuration: 30 * time.Second})
	if err != nil {
		return err
	}

	tr, err := stt.NewTranscriber(c.Model)
	if err != nil {
		return err
	}
	defer tr.Close()

	res, err := tr.TranscribePCM(ctx, pcm, stt.Options{Language: c.Language})
	if err != nil {
		return err
	}
	fmt.Println("heard:  ", res.Text)
	if c.DryRun {
		return nil
	}
	return send(ipc.ControlMessage{Cmd: ipc.CmdSay, Text: res.Text}, 0)
}
