package main

import (
	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"github.com/mastercactapus/gprobe/calibration"
	"github.com/mastercactapus/gprobe/config"
	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/machine/grbl"
	"github.com/mastercactapus/gprobe/spjs"
)

// conn is what the commands need from a grbl transport.
type conn interface {
	machine.Transport
	State() machine.State
	LastProbe() (grbl.ProbeReport, bool)
	Close() error
}

var (
	_ conn = &grbl.SerialTransport{}
	_ conn = &grbl.SPJSTransport{}
)

type spjsConn struct {
	*grbl.SPJSTransport
	sp *spjs.SPJS
}

func (c spjsConn) Close() error {
	c.SPJSTransport.Close()
	return c.sp.Close()
}

func connect(cfg *config.Config) (conn, error) {
	c := cfg.Connection
	if c.SPJS != "" {
		sp := spjs.NewSPJS(c.SPJS)
		return spjsConn{SPJSTransport: grbl.NewSPJSTransport(sp, c.Port, c.Baud), sp: sp}, nil
	}

	port, err := serial.OpenPort(&serial.Config{Name: c.Port, Baud: c.Baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", c.Port)
	}
	return grbl.NewSerialTransport(port, grbl.SerialOptions{PollInterval: c.PollInterval}), nil
}

type nopCloser struct{ calibration.Store }

func (nopCloser) Close() error { return nil }

type store interface {
	calibration.Store
	Close() error
}

func openStore(cfg *config.Config) (store, error) {
	switch cfg.Store {
	case config.StoreFile:
		return nopCloser{calibration.NewFileStore(cfg.StorePath())}, nil
	case config.StoreBadger:
		s, err := calibration.OpenBadgerStore(cfg.StorePath())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nopCloser{calibration.NewMemoryStore()}, nil
}
