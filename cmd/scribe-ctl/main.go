package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Socket string `short:"s" long:"socket" default:"/tmp/scribe.sock" description:"Daemon control socket"`

	Trigger TriggerCommand `command:"trigger" description:"Listen for a spoken command"`
	Say     SayCommand     `command:"say" description:"Send free text through the intent classifier"`
	Write   WriteCommand   `command:"write" description:"Write text on the whiteboard"`
	Erase   SimpleCommand  `command:"erase" description:"Wipe the whiteboard"`
	Paint   SimpleCommand  `command:"paint" description:"Take a photo and draw it"`
	Reset   SimpleCommand  `command:"reset" description:"Move the arm back home"`
	Quit    SimpleCommand  `command:"quit" description:"Home the arm and stop the daemon"`
	Stop    SimpleCommand  `command:"stop" alias:"estop" description:"Emergency stop"`
	Status  SimpleCommand  `command:"status" description:"Show the session state"`
	Renew   SimpleCommand  `command:"renew" description:"Start a new session after a fault"`
	Listen  ListenCommand  `command:"listen" description:"Transcribe an audio file and send it as a command"`
	Panel   PanelCommand   `command:"panel" description:"Interactive control panel"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "scribe-ctl - control the whiteboard arm daemon"
	parser.CommandHandler = bindSimple

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// bindSimple tells each SimpleCommand which ipc command it stands for.
func bindSimple(cmd flags.Commander, args []string) error {
	if cmd == nil {
		return nil
	}
	if sc, ok := cmd.(*SimpleCommand); ok {
		sc.name = parser.Active.Name
	}
	return cmd.Execute(args)
}
