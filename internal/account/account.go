package account

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/namehash"
)

var (
	// ErrNotOperator is returned when a caller without operator rights
	// attempts a restricted call.
	ErrNotOperator = errors.New("caller is not the operator")

	// ErrExecutionFailed is returned when an account call could not be
	// carried out.
	ErrExecutionFailed = errors.New("account execution failed")

	// ErrAlreadyInitialized is returned when initializing an account twice.
	ErrAlreadyInitialized = errors.New("account already initialized")
)

// Executor carries out an account's outbound call. The arena's default
// executor accepts every call; hosts embedding the arena may supply
// their own.
type Executor func(from, to common.Address, value []byte, data []byte) ([]byte, error)

// Account is one node's deterministic account. Owner and operator start
// as the registry that provisioned it.
type Account struct {
	address  common.Address // address is the deterministic account address
	node     namehash.Node  // node is the naming-system node the account belongs to
	owner    common.Address // owner may rotate the operator
	operator common.Address // operator may execute outbound calls
	exec     Executor       // exec carries out outbound calls

	initialized bool
	mu          sync.Mutex
}

// Address returns the account's deterministic address.
func (a *Account) Address() common.Address {
	return a.address
}

// Node returns the naming-system node the account belongs to.
func (a *Account) Node() namehash.Node {
	return a.node
}

// Owner returns the current owner.
func (a *Account) Owner() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.owner
}

// Operator returns the current operator.
func (a *Account) Operator() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.operator
}

// Initialize binds the account to its owner and node. Callable once.
func (a *Account) Initialize(owner common.Address, node namehash.Node) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return ErrAlreadyInitialized
	}

	a.owner = owner
	a.operator = owner
	a.node = node
	a.initialized = true

	return nil
}

// Execute carries out an outbound call on behalf of the account.
// Restricted to the operator.
func (a *Account) Execute(caller, to common.Address, value []byte, data []byte) ([]byte, error) {
	a.mu.Lock()
	operator := a.operator
	exec := a.exec
	a.mu.Unlock()

	if caller != operator {
		return nil, ErrNotOperator
	}

	if exec == nil {
		return nil, ErrExecutionFailed
	}

	result, err := exec(a.address, to, value, data)
	if err != nil {
		return nil, errors.Join(ErrExecutionFailed, err)
	}

	return result, nil
}

// SetOperator rotates the operator. Restricted to the owner.
func (a *Account) SetOperator(caller, operator common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.owner {
		return ErrNotOperator
	}

	a.operator = operator

	return nil
}

// Arena indexes the accounts instantiated so far, keyed by node.
// Provisioning is exactly-once per node regardless of caller.
type Arena struct {
	factory  *Factory
	exec     Executor
	accounts map[namehash.Node]*Account
	mu       sync.Mutex
}

// NewArena creates an empty arena over the given factory.
func NewArena(factory *Factory, exec Executor) *Arena {
	return &Arena{
		factory:  factory,
		exec:     exec,
		accounts: make(map[namehash.Node]*Account),
	}
}

// Provision returns the node's account, instantiating and initializing
// it on first call. The second return reports whether this call created
// the account.
func (ar *Arena) Provision(node namehash.Node, owner common.Address) (*Account, bool, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	if existing, ok := ar.accounts[node]; ok {
		return existing, false, nil
	}

	acct := &Account{
		address: ar.factory.PredictAddress(node),
		exec:    ar.exec,
	}

	if err := acct.Initialize(owner, node); err != nil {
		return nil, false, err
	}

	ar.accounts[node] = acct

	return acct, true, nil
}

// Get returns the node's account, or nil if it has not been provisioned.
func (ar *Arena) Get(node namehash.Node) *Account {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	return ar.accounts[node]
}

// Count returns the number of provisioned accounts.
func (ar *Arena) Count() int {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	return len(ar.accounts)
}
