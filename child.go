package sockd

import "os"

const (
	// ChildEnv 标记由 ProcessPerConnection 派生的子进程
	ChildEnv = "SOCKD_CHILD"
	// ChildPeerEnv 携带父进程 accept 时看到的对端地址
	ChildPeerEnv = "SOCKD_CHILD_PEER"
	// ChildConnEnv 携带父进程分配的连接编号
	ChildConnEnv = "SOCKD_CHILD_CONN"

	// 子进程中连接所在的描述符（ExtraFiles[0]）
	childConnFd = 3
)

// IsChild 报告当前进程是否为 ProcessPerConnection 派生的子进程
func IsChild() bool { return os.Getenv(ChildEnv) == "1" }
