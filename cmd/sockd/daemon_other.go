//go:build !unix

package main

import (
	"github.com/legamerdc/sockd"
	"github.com/legamerdc/sockd/config"
)

func daemonized() bool { return false }

func daemonize([]string) (int, error) { return 0, sockd.ErrPlatformNotSupported }

func detach(*config.Config) error { return sockd.ErrPlatformNotSupported }
