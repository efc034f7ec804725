package cli

import (
	"errors"
	"flag"
	"os"
	"slices"
) // .import

var Flags struct {
	RunMode       string // local, azure, aws
	AppConfigPath string // if override
	SettingsPath  string // json settings overlay
} // .flags

var runModes = []string{RUN_MODE_LOCAL, RUN_MODE_AZURE, RUN_MODE_AWS}

const RUN_MODE_LOCAL = "local"
const RUN_MODE_AZURE = "azure"
const RUN_MODE_AWS = "aws"

// ParseFlags read cli flags into an Flags struct which is returned
func ParseFlags() error {
	return parseFlags(flag.CommandLine, os.Args[1:])
} // .ParseFlags

func parseFlags(fs *flag.FlagSet, args []string) error {

	fs.StringVar(&Flags.RunMode, "env", RUN_MODE_LOCAL, "used to set app run mode: local, azure, or aws")
	fs.StringVar(&Flags.AppConfigPath, "appconf", "", "used to set an app configuration .env file to load")
	fs.StringVar(&Flags.SettingsPath, "settings", "", "used to set a json settings file layered over the environment, defaults to $ConfigPath")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if !slices.Contains(runModes, Flags.RunMode) {
		return errors.New("cli flag run mode not recognized")
	} // if

	return nil
}
