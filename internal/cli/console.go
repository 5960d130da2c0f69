package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"optiondesk/internal/broker"
	"optiondesk/internal/errors"
	"optiondesk/internal/models"
	"optiondesk/internal/session"
)

// errQuit ends the watch session.
var errQuit = fmt.Errorf("quit")

const consoleHelp = `Commands:
  entry <price>        set entry (switches to manual)
  target <price>       set target (manual)
  sl <price>           set stop-loss (manual)
  lots <n>             set lots (manual)
  auto                 hand the levels back to pricing
  autotrade on|off     toggle goal-based sizing
  select <symbol>      switch option
  index NIFTY|SENSEX   switch index
  clear                deselect the option
  place                place the current levels as a GTT
  help                 show this list
  quit                 leave`

// console turns typed commands into controller actions.
type console struct {
	ctrl     *session.Controller
	lookup   func(keyOrSymbol string) (models.Instrument, error)
	snapshot func() (session.Snapshot, bool)
	placer   broker.GTTPlacer
	output   *Output
}

// exec runs one command line. It returns errQuit for quit.
func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "entry", "target", "sl", "stoploss":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <price>", cmd)
		}
		price, err := parseDecimal(cmd, args[0])
		if err != nil {
			return err
		}
		c.ctrl.Edit(priceEdit(cmd, price))
	case "lots":
		if len(args) != 1 {
			return fmt.Errorf("usage: lots <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return errors.NewValidationError("lots", args[0], "lots must be a non-negative integer")
		}
		c.ctrl.Edit(session.Edit{Lots: &n})
	case "auto", "resume":
		c.ctrl.ResumeAuto()
	case "autotrade":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("usage: autotrade on|off")
		}
		c.ctrl.SetAutoTrade(args[0] == "on")
	case "select":
		if len(args) == 0 {
			return fmt.Errorf("usage: select <symbol>")
		}
		inst, err := c.lookup(strings.Join(args, " "))
		if err != nil {
			return err
		}
		c.ctrl.SelectInstrument(inst)
	case "index":
		if len(args) != 1 {
			return fmt.Errorf("usage: index NIFTY|SENSEX")
		}
		u, err := models.ParseUnderlying(args[0])
		if err != nil {
			return err
		}
		c.ctrl.SelectUnderlying(u)
	case "clear":
		c.ctrl.ClearInstrument()
	case "place":
		return c.place(ctx)
	case "help", "?":
		c.output.Println(consoleHelp)
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func priceEdit(field string, price decimal.Decimal) session.Edit {
	switch field {
	case "entry":
		return session.Edit{Entry: &price}
	case "target":
		return session.Edit{Target: &price}
	default:
		return session.Edit{StopLoss: &price}
	}
}

func (c *console) place(ctx context.Context) error {
	snap, ok := c.snapshot()
	if !ok {
		return fmt.Errorf("session is shutting down")
	}
	req, err := gttRequest(snap)
	if err != nil {
		return err
	}
	result, err := c.placer.PlaceGTT(ctx, req)
	if err != nil {
		return err
	}
	c.output.Success("✓ GTT placed: %s (%s x %d)", result.OrderID, req.InstrumentKey, req.Quantity)
	return nil
}
