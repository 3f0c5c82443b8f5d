package cron

import logx "cronbot/pkg/logx"

func nopLog() logx.Logger { return logx.Nop() }
