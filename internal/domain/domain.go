package domain

import (
	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
	"github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
)

type (
	Customer         = customers.Customer
	CustomerActivity = customers.CustomerActivity
	CSMAction        = customers.CSMAction

	Playbook          = playbooks.Playbook
	PlaybookStep      = playbooks.PlaybookStep
	PlaybookExecution = playbooks.PlaybookExecution
	StepExecution     = playbooks.StepExecution
)

// Models lists every table, in migration order.
func Models() []interface{} {
	return []interface{}{
		&customers.Customer{},
		&customers.CustomerActivity{},
		&customers.CSMAction{},
		&playbooks.Playbook{},
		&playbooks.PlaybookStep{},
		&playbooks.PlaybookExecution{},
		&playbooks.StepExecution{},
	}
}
