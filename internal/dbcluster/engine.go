package dbcluster

// EngineType is the backend operator flavour.
type EngineType string

const (
	EnginePXC        EngineType = "pxc"
	EnginePSMDB      EngineType = "psmdb"
	EnginePostgresql EngineType = "postgresql"
)

// DBType is the database kind shown to users.
type DBType string

const (
	DBMySQL    DBType = "mysql"
	DBMongo    DBType = "mongodb"
	DBPostgres DBType = "postgresql"
)

type ProxyType string

const (
	ProxyHAProxy   ProxyType = "haproxy"
	ProxyProxySQL  ProxyType = "proxysql"
	ProxyMongos    ProxyType = "mongos"
	ProxyPGBouncer ProxyType = "pgbouncer"
)

func EngineToDBType(e EngineType) DBType {
	switch e {
	case EnginePXC:
		return DBMySQL
	case EnginePSMDB:
		return DBMongo
	case EnginePostgresql:
		return DBPostgres
	}
	return ""
}

func DBTypeToEngine(t DBType) EngineType {
	switch t {
	case DBMySQL:
		return EnginePXC
	case DBMongo:
		return EnginePSMDB
	case DBPostgres:
		return EnginePostgresql
	}
	return ""
}

// DefaultProxy is the proxy the console provisions for an engine.
func DefaultProxy(e EngineType) ProxyType {
	switch e {
	case EnginePXC:
		return ProxyHAProxy
	case EnginePSMDB:
		return ProxyMongos
	case EnginePostgresql:
		return ProxyPGBouncer
	}
	return ""
}

// AllowedProxy reports whether p may front engine e.
func AllowedProxy(e EngineType, p ProxyType) bool {
	switch e {
	case EnginePXC:
		return p == ProxyHAProxy || p == ProxyProxySQL
	case EnginePSMDB:
		return p == ProxyMongos
	case EnginePostgresql:
		return p == ProxyPGBouncer
	}
	return false
}
