package storage

import logx "cronbot/pkg/logx"

func logxNop() logx.Logger { return logx.Nop() }
