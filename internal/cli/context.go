package cli

import (
	"io"
	"time"
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

type GlobalOptions struct {
	Server   string
	GRPCAddr string
	JSON     bool
	Timeout  time.Duration
}

type AppContext struct {
	Build BuildInfo
	IO    IOStreams
	Opts  GlobalOptions
}
