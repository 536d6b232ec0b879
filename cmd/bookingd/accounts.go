package main

import (
	"github.com/spf13/cobra"

	"github.com/example/booking-engine/internal/application"
)

func newTenantCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(newTenantAddCmd(opts))
	return cmd
}

func newTenantAddCmd(opts *rootOptions) *cobra.Command {
	var name string

	c := &cobra.Command{
		Use:   "add",
		Short: "Create a tenant with the default booking policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context(), true, true)
			if err != nil {
				return err
			}
			defer rt.close()

			svc, err := rt.services()
			if err != nil {
				return err
			}
			tenant, err := svc.catalog.CreateTenant(cmd.Context(), operator, name)
			if err != nil {
				return err
			}
			cmd.Printf("created tenant %q (%s)\n", tenant.Name, tenant.ID)
			return nil
		},
	}

	c.Flags().StringVar(&name, "name", "", "tenant name")
	_ = c.MarkFlagRequired("name")
	return c
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCmd(opts))
	return cmd
}

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var params application.RegisterUserParams

	c := &cobra.Command{
		Use:   "add",
		Short: "Add an account (customer, tenant admin or staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context(), true, true)
			if err != nil {
				return err
			}
			defer rt.close()

			svc, err := rt.services()
			if err != nil {
				return err
			}
			user, err := svc.auth.RegisterUser(cmd.Context(), params)
			if err != nil {
				return err
			}
			cmd.Printf("created user %q (%s)\n", user.Email, user.ID)
			return nil
		},
	}

	c.Flags().StringVar(&params.Email, "email", "", "login email")
	c.Flags().StringVar(&params.Password, "password", "", "login password")
	c.Flags().StringVar(&params.DisplayName, "name", "", "display name")
	c.Flags().StringVar(&params.TenantID, "tenant", "", "tenant the user belongs to")
	c.Flags().BoolVar(&params.IsAdmin, "admin", false, "administer the tenant, or everything without --tenant")
	_ = c.MarkFlagRequired("email")
	_ = c.MarkFlagRequired("password")
	return c
}
