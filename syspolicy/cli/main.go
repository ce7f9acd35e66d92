// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli is the main entrypoint for syspolicy.
package cli

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/syspolicy/pkg/log"
	"gvisor.dev/syspolicy/syspolicy/cmd"
	"gvisor.dev/syspolicy/syspolicy/cmd/util"
	"gvisor.dev/syspolicy/syspolicy/config"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	subcommand := flag.CommandLine.Arg(0)

	// Set up logging.
	if conf.Debug {
		log.SetLevel(log.Debug)
	}
	var logFile *os.File
	if conf.LogFilename != "" {
		// O_APPEND: the same file may be shared by several invocations.
		logFile, err = log.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, log.FileOpts{
			Command: subcommand,
			Time:    time.Now(),
		})
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		util.ErrorLogger = logFile
	} else {
		logFile = os.Stderr
	}
	emitter, err := log.EmitterForFormat(conf.LogFormat, &log.Writer{Next: logFile})
	if err != nil {
		util.Fatalf("%v", err)
	}
	log.SetTarget(emitter)

	log.Infof("***************************")
	log.Infof("Args: %s", os.Args)
	log.Infof("%s, %s, PID %d, PPID %d, UID %d, GID %d", runtime.Version(), runtime.GOARCH, os.Getpid(), os.Getppid(), os.Getuid(), os.Getgid())
	conf.Log()
	log.Infof("***************************")

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	if subcmdCode != subcommands.ExitSuccess {
		log.Warningf("Failure to execute command, err: %v", subcmdCode)
	}
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// syspolicy.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	// Inspection commands.
	cb(new(cmd.Dump), "")
	cb(new(cmd.Check), "")
	cb(new(cmd.Export), "")

	// Policy authoring.
	const authoringGroup = "authoring"
	cb(new(cmd.Vet), authoringGroup)
	cb(new(cmd.GenBaseline), authoringGroup)

	// Installation.
	const installGroup = "install"
	cb(new(cmd.Exec), installGroup)
}
